package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sonroyaalmerol/calliope/internal/cache"
	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/repository"
	"github.com/sonroyaalmerol/calliope/internal/rest"
)

func nodeClient() *rest.Client {
	return rest.New(cfg.LavalinkAddress, cfg.LavalinkPassword, cfg.RESTTimeout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the node's version, sources and plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := nodeClient().Info(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("version:    %s\n", info.Version.Semver)
		fmt.Printf("lavaplayer: %s\n", info.Lavaplayer)
		fmt.Printf("jvm:        %s\n", info.JVM)
		fmt.Printf("git:        %s@%s\n", info.Git.Branch, info.Git.Commit)
		fmt.Printf("sources:    %s\n", strings.Join(info.SourceManagers, ", "))
		fmt.Printf("filters:    %s\n", strings.Join(info.Filters, ", "))
		for name, v := range info.PluginVersions() {
			fmt.Printf("plugin:     %s %s\n", name, v)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the node's stats as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := nodeClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <encoded>...",
	Short: "Decode track blobs through the node, using the local decode cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dec player.Decoder = nodeClient()
		noCache, _ := cmd.Flags().GetBool("no-cache")
		if !noCache {
			db, err := repository.OpenDB(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			dec = cache.NewTrackCache(nodeClient(), repository.NewRepo(db), cfg.DecodeCacheLimit)
		}
		tracks, err := dec.DecodeTracks(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printJSON(tracks)
	},
}

func init() {
	decodeCmd.Flags().Bool("no-cache", false, "always ask the node")
}
