package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eringen/headlessblog"
	"github.com/eringen/headlessblog/scaffold"
	"github.com/eringen/headlessblog/views"
)

type rootFlags struct {
	config  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "headlessblog",
		Short:         "Build a blog index from Contentful posts",
		Long:          "headlessblog sources posts from Contentful, stores a snapshot and renders the blog index as a static site or through a preview server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "headlessblog.yaml", "config file (optional)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newBuildCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newSyncCmd(flags))
	cmd.AddCommand(newDeployCmd(flags))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig reads the config file, then the environment, then the command's
// flag overrides. The default config path may be absent; an explicit one may not.
func (f *rootFlags) loadConfig(cmd *cobra.Command, overrides ...func(*headlessblog.SiteConfig)) (headlessblog.SiteConfig, *logrus.Logger, error) {
	boot := headlessblog.NewLogger("info")
	path := f.config
	if _, err := os.Stat(path); err != nil && !cmd.Flags().Changed("config") {
		path = ""
	}
	if f.verbose {
		overrides = append(overrides, func(c *headlessblog.SiteConfig) { c.LogLevel = "debug" })
	}
	cfg, err := headlessblog.LoadConfig(path, boot, overrides...)
	if err != nil {
		return cfg, boot, err
	}
	return cfg, headlessblog.NewLogger(cfg.LogLevel), nil
}

func (f *rootFlags) newApp(cfg headlessblog.SiteConfig, logger *logrus.Logger) (*headlessblog.App, error) {
	return headlessblog.New(cfg, views.Funcs(), headlessblog.WithLogger(logger))
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newBuildCmd(flags *rootFlags) *cobra.Command {
	var (
		offline bool
		out     string
		probe   bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Sync posts and write the static site",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd, func(c *headlessblog.SiteConfig) {
				if cmd.Flags().Changed("offline") {
					c.Offline = offline
				}
				if cmd.Flags().Changed("probe-images") {
					c.ProbeImages = probe
				}
				if out != "" {
					c.OutputDir = out
				}
			})
			if err != nil {
				return err
			}
			a, err := flags.newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()
			res, err := a.Build(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Built %d posts into %s (%d files, %s)\n",
				res.Posts, res.OutputDir, len(res.Files), res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "build from the stored snapshot without contacting Contentful")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (overrides output_dir)")
	cmd.Flags().BoolVar(&probe, "probe-images", false, "fetch image headers to record width and height")
	return cmd
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the preview server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd, func(c *headlessblog.SiteConfig) {
				if addr != "" {
					c.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			a, err := flags.newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides addr)")
	return cmd
}

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch posts from Contentful into the local snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := flags.newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()
			info, err := a.Sync(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d %s nodes at %s\n",
				info.Total, info.Type, info.SyncedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newDeployCmd(flags *rootFlags) *cobra.Command {
	var (
		build  bool
		bucket string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload the built site to S3 and invalidate CloudFront",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd, func(c *headlessblog.SiteConfig) {
				if bucket != "" {
					c.Deploy.Bucket = bucket
				}
			})
			if err != nil {
				return err
			}
			a, err := flags.newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()
			if build {
				if _, err := a.Build(ctx); err != nil {
					return err
				}
			}
			res, err := a.Deploy(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d objects (%d bytes) to s3://%s\n",
				len(res.Uploaded), res.Bytes, path.Join(cfg.Deploy.Bucket, cfg.Deploy.Key("")))
			if res.InvalidationID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "CloudFront invalidation %s created\n", res.InvalidationID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&build, "build", false, "build the site before uploading")
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket (overrides deploy.bucket)")
	return cmd
}

func newInitCmd() *cobra.Command {
	var data scaffold.Data
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config, .env.example and stylesheet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			if data.SiteName == "" {
				data.SiteName = scaffold.ToTitle(filepath.Base(abs))
			}
			created, err := scaffold.Write(dir, data)
			for _, p := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "  created %s\n", p)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nSet CONTENTFUL_ACCESS_TOKEN in .env, then run 'headlessblog build'.")
			return nil
		},
	}
	cmd.Flags().StringVar(&data.SiteName, "name", "", "site name (default derived from the directory)")
	cmd.Flags().StringVar(&data.SiteURL, "url", "http://localhost:3000", "canonical site URL")
	cmd.Flags().StringVar(&data.SpaceID, "space", "", "Contentful space ID")
	cmd.Flags().StringVar(&data.ContentType, "content-type", "post", "Contentful content type of posts")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the headlessblog version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "headlessblog %s\n", version)
		},
	}
}
