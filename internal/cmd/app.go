// Package cmd provides the CLI commands for ghsync.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/fclairamb/ghsync/internal/apperrors"
	"github.com/fclairamb/ghsync/internal/github"
	"github.com/fclairamb/ghsync/internal/mirror"
	"github.com/fclairamb/ghsync/internal/store"
	"github.com/fclairamb/ghsync/internal/version"
	"github.com/fclairamb/ghsync/internal/webhook"
)

var (
	// konfig is the global koanf instance.
	konfig = koanf.New(".")
)

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// commitFlags are the shared mutation flags for write and delete commands.
func commitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "message",
			Aliases: []string{"m"},
			Usage:   "Commit message (a timestamped message is generated if not set)",
		},
		&cli.StringFlag{
			Name:    "author-name",
			Usage:   "Commit author name (requires --author-email)",
			Sources: cli.EnvVars("GHS_AUTHOR_NAME"),
		},
		&cli.StringFlag{
			Name:    "author-email",
			Usage:   "Commit author email (requires --author-name)",
			Sources: cli.EnvVars("GHS_AUTHOR_EMAIL"),
		},
	}
}

// LogFormat represents the log output format.
type LogFormat string

const (
	// LogFormatText is the human-readable text format (default).
	LogFormatText LogFormat = "text"
	// LogFormatJSON is the JSON-formatted structured logs.
	LogFormatJSON LogFormat = "json"
)

// getLogFormat returns the configured log format from GHS_LOG_FORMAT environment variable.
func getLogFormat() LogFormat {
	val := strings.ToLower(os.Getenv("GHS_LOG_FORMAT"))
	switch val {
	case "json":
		return LogFormatJSON
	case "text", "":
		return LogFormatText
	default:
		// Invalid format - will warn after logger is set up
		return LogFormatText
	}
}

// setupLogging configures the global logger based on the verbose flag and GHS_LOG_FORMAT.
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	format := getLogFormat()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	// Warn about invalid format after logger is set up
	envVal := strings.ToLower(os.Getenv("GHS_LOG_FORMAT"))
	if envVal != "" && envVal != "text" && envVal != "json" {
		slog.Warn("Invalid GHS_LOG_FORMAT value, using text format", "value", envVal)
	}

	if level == slog.LevelDebug {
		slog.Debug("Verbose logging enabled")
	}
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "ghsync",
		Usage:   "Read, write and mirror repository files through the GitHub contents API",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Usage:   "GitHub API token",
				Sources: cli.EnvVars("GITHUB_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "owner",
				Aliases: []string{"o"},
				Usage:   "Repository owner",
				Sources: cli.EnvVars("GHS_OWNER"),
			},
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Repository name",
				Sources: cli.EnvVars("GHS_REPO"),
			},
			&cli.StringFlag{
				Name:    "branch",
				Aliases: []string{"b"},
				Usage:   "Branch targeted by mutations",
				Sources: cli.EnvVars("GHS_BRANCH"),
				Value:   store.DefaultBranch,
			},
			&cli.StringFlag{
				Name:    "store-path",
				Usage:   "Path to the local mirror git repository",
				Aliases: []string{"s"},
				Value:   "mirror",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			// Load environment variables with GHS_ prefix
			if err := konfig.Load(env.Provider(".", env.Opt{
				Prefix: "GHS_",
			}), nil); err != nil {
				return ctx, fmt.Errorf("load env: %w", err)
			}

			return ctx, nil
		},
		Commands: []*cli.Command{
			getCommand(),
			catCommand(),
			putCommand(),
			putDirCommand(),
			rmCommand(),
			rmDirCommand(),
			lsCommand(),
			cpCommand(),
			mvCommand(),
			urlCommand(),
			mirrorCommand(),
			remoteCommand(),
			serveCommand(),
		},
	}
}

// getCommand creates the get subcommand.
func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show metadata of a repository file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"O"},
				Usage:   "Download the file content to a local path instead",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			p, err := pathArg(cmd, 0)
			if err != nil {
				return err
			}

			if localPath := cmd.String("output"); localPath != "" {
				if err := files.ReadToFile(ctx, owner, repo, p, localPath); err != nil {
					return fmt.Errorf("download: %w", err)
				}
				slog.Info("file downloaded", "path", p, "local_path", localPath)
				return nil
			}

			entry, err := files.Metadata(ctx, owner, repo, p)
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}

			displayEntry(entry)
			return nil
		},
	}
}

// catCommand creates the cat subcommand.
func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Print the content of a repository file to stdout",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			p, err := pathArg(cmd, 0)
			if err != nil {
				return err
			}

			data, err := files.ReadBytes(ctx, owner, repo, p)
			if err != nil {
				return fmt.Errorf("read: %w", err)
			}

			displayContent(data)
			return nil
		},
	}
}

// putCommand creates the put subcommand.
func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Create or replace a repository file from a local file or stdin content",
		ArgsUsage: "<path> [local-file]",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "content",
				Usage: "Inline string content instead of a local file",
			},
			verboseFlag,
		}, commitFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			p, err := pathArg(cmd, 0)
			if err != nil {
				return err
			}

			opts := commitOptions(cmd)

			var resp *github.CommitResponse
			switch {
			case cmd.IsSet("content"):
				resp, err = files.Write(ctx, owner, repo, p, cmd.String("content"), opts)
			case cmd.Args().Len() > 1:
				resp, err = files.WriteFromFile(ctx, owner, repo, p, cmd.Args().Get(1), opts)
			default:
				return apperrors.ErrContentRequired
			}
			if err != nil {
				return fmt.Errorf("put: %w", err)
			}

			displayCommit("put", p, resp)
			return nil
		},
	}
}

// putDirCommand creates the put-dir subcommand.
func putDirCommand() *cli.Command {
	return &cli.Command{
		Name:      "put-dir",
		Usage:     "Upload every file of a local directory, one commit per file",
		ArgsUsage: "<local-dir> [dest-root]",
		Flags:     append([]cli.Flag{verboseFlag}, commitFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			localDir, err := pathArg(cmd, 0)
			if err != nil {
				return err
			}
			destRoot := cmd.Args().Get(1)

			outcomes, err := files.WriteDirectory(ctx, owner, repo, destRoot, localDir, commitOptions(cmd))
			displayBatchOutcomes("uploaded", outcomes)
			if err != nil {
				return fmt.Errorf("put-dir: %w", err)
			}
			return nil
		},
	}
}

// rmCommand creates the rm subcommand.
func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete a repository file",
		ArgsUsage: "<path>",
		Flags:     append([]cli.Flag{verboseFlag}, commitFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			p, err := pathArg(cmd, 0)
			if err != nil {
				return err
			}

			resp, err := files.Delete(ctx, owner, repo, p, commitOptions(cmd))
			if err != nil {
				return fmt.Errorf("rm: %w", err)
			}

			displayCommit("deleted", p, resp)
			return nil
		},
	}
}

// rmDirCommand creates the rm-dir subcommand.
func rmDirCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm-dir",
		Usage:     "Delete every file under a repository directory, one commit per file",
		ArgsUsage: "[path]",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Delete the entire repository content tree (path is ignored)",
			},
			verboseFlag,
		}, commitFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			opts := commitOptions(cmd)

			var outcomes []store.BatchOutcome
			if cmd.Bool("all") {
				outcomes, err = files.DeleteRepositoryContents(ctx, owner, repo, opts)
			} else {
				var p string
				p, err = pathArg(cmd, 0)
				if err != nil {
					return err
				}
				outcomes, err = files.DeleteDirectory(ctx, owner, repo, p, opts)
			}

			displayBatchOutcomes("deleted", outcomes)
			if err != nil {
				return fmt.Errorf("rm-dir: %w", err)
			}
			return nil
		},
	}
}

// lsCommand creates the ls subcommand.
func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List the entries of a repository directory",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "long",
				Aliases: []string{"l"},
				Usage:   "Show SHA and size columns",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			// The repository root is a valid directory path.
			p := cmd.Args().Get(0)

			entries, err := files.List(ctx, owner, repo, p)
			if err != nil {
				return fmt.Errorf("ls: %w", err)
			}

			displayEntryList(entries, cmd.Bool("long"))
			return nil
		},
	}
}

// cpCommand creates the cp subcommand.
func cpCommand() *cli.Command {
	return &cli.Command{
		Name:      "cp",
		Usage:     "Copy a repository file to another path",
		ArgsUsage: "<src-path> <dst-path>",
		Flags:     append([]cli.Flag{verboseFlag}, commitFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			src, dst, err := srcDstArgs(cmd)
			if err != nil {
				return err
			}

			resp, err := files.Copy(ctx, owner, repo, src, dst, commitOptions(cmd))
			if err != nil {
				return fmt.Errorf("cp: %w", err)
			}

			displayCommit("copied", dst, resp)
			return nil
		},
	}
}

// mvCommand creates the mv subcommand.
func mvCommand() *cli.Command {
	return &cli.Command{
		Name:      "mv",
		Usage:     "Move a repository file to another path (copy then delete)",
		ArgsUsage: "<src-path> <dst-path>",
		Flags:     append([]cli.Flag{verboseFlag}, commitFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			src, dst, err := srcDstArgs(cmd)
			if err != nil {
				return err
			}

			resp, err := files.Move(ctx, owner, repo, src, dst, commitOptions(cmd))
			if err != nil {
				if resp != nil {
					// The copy landed; only the source cleanup failed.
					displayCommit("copied", dst, resp)
				}
				return fmt.Errorf("mv: %w", err)
			}

			displayCommit("moved", dst, resp)
			return nil
		},
	}
}

// urlCommand creates the url subcommand.
func urlCommand() *cli.Command {
	return &cli.Command{
		Name:      "url",
		Usage:     "Print the raw download URL of a repository file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			owner, repo, err := repoArgs(cmd)
			if err != nil {
				return err
			}

			p, err := pathArg(cmd, 0)
			if err != nil {
				return err
			}

			// Pure string template, no client or network needed.
			files := store.NewFileStore(nil, store.WithDefaultBranch(cmd.String("branch")))
			displayURL(files.RawDownloadURL(owner, repo, cmd.String("branch"), p))
			return nil
		},
	}
}

// mirrorCommand creates the mirror subcommand.
func mirrorCommand() *cli.Command {
	return &cli.Command{
		Name:  "mirror",
		Usage: "Mirror the remote repository tree into the local git-backed store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Only mirror the remote subtree under this path",
				Sources: cli.EnvVars("GHS_MIRROR_ROOT"),
			},
			&cli.BoolFlag{
				Name:  "push",
				Usage: "Push the local store to its remote after the sync",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			localStore, remoteConfig, err := setupLocalStore(cmd)
			if err != nil {
				return err
			}

			// Pull from remote before mirroring (if remote is configured)
			if localStore.IsRemoteEnabled() {
				if pullErr := localStore.Pull(ctx); pullErr != nil {
					return fmt.Errorf("pull from remote: %w", pullErr)
				}
			}

			m := mirror.New(files, localStore, owner, repo,
				mirror.WithLogger(slog.Default()),
				mirror.WithRoot(cmd.String("root")))

			result, err := m.Sync(ctx)
			if err != nil {
				return fmt.Errorf("mirror: %w", err)
			}

			displayMirrorResult(result)

			if cmd.Bool("push") || remoteConfig.IsPushEnabled() {
				if result.Written > 0 || result.Deleted > 0 {
					if err := localStore.Push(ctx); err != nil {
						return fmt.Errorf("push to remote: %w", err)
					}
					slog.Info("pushed to remote")
				}
			}

			return nil
		},
	}
}

// remoteCommand creates the remote subcommand.
func remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Manage the git remote of the local mirror store",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show current remote configuration from environment variables",
				Flags: []cli.Flag{
					verboseFlag,
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(_ context.Context, _ *cli.Command) error {
					cfg := store.LoadRemoteConfig(konfig)
					displayRemoteConfig(cfg)
					return nil
				},
			},
			{
				Name:  "test",
				Usage: "Test connection to remote repository",
				Flags: []cli.Flag{
					verboseFlag,
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(ctx context.Context, _ *cli.Command) error {
					cfg := store.LoadRemoteConfig(konfig)

					if !cfg.IsEnabled() {
						return apperrors.ErrRemoteNotConfiguredSetURL
					}

					return displayConnectionTest(ctx, cfg)
				},
			},
		},
	}
}

// serveCommand creates the serve subcommand for the webhook server.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the webhook server and mirror on push events",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port to listen on",
				Sources: cli.EnvVars("GHS_WEBHOOK_PORT"),
			},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "Webhook secret for signature verification (optional, skips verification if not set)",
				Sources: cli.EnvVars("GHS_WEBHOOK_SECRET"),
			},
			&cli.StringFlag{
				Name:    "path",
				Usage:   "Webhook endpoint path",
				Sources: cli.EnvVars("GHS_WEBHOOK_PATH"),
			},
			&cli.DurationFlag{
				Name:    "sync-delay",
				Usage:   "Delay before mirroring after a push event (debounce)",
				Sources: cli.EnvVars("GHS_WEBHOOK_DELAY"),
			},
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Only mirror the remote subtree under this path",
				Sources: cli.EnvVars("GHS_MIRROR_ROOT"),
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, owner, repo, err := setupFileStore(cmd)
			if err != nil {
				return err
			}

			localStore, remoteConfig, err := setupLocalStore(cmd)
			if err != nil {
				return err
			}

			// Flags override the environment-derived webhook config
			cfg := webhook.LoadConfig(konfig)
			if cmd.IsSet("port") {
				cfg.Port = cmd.Int("port")
			}
			if cmd.IsSet("path") {
				cfg.Path = cmd.String("path")
			}
			if cmd.IsSet("secret") {
				cfg.Secret = cmd.String("secret")
			}
			if cmd.IsSet("sync-delay") {
				cfg.SyncDelay = cmd.Duration("sync-delay")
			}

			if cfg.Secret == "" {
				slog.Warn("webhook secret not configured - signature verification disabled (set --secret or GHS_WEBHOOK_SECRET)")
			}

			m := mirror.New(files, localStore, owner, repo,
				mirror.WithLogger(slog.Default()),
				mirror.WithRoot(cmd.String("root")))

			opts := []webhook.SyncWorkerOption{}
			if cfg.SyncDelay > 0 {
				opts = append(opts, webhook.WithSyncDelay(cfg.SyncDelay))
			}
			syncWorker := webhook.NewSyncWorker(m, localStore, remoteConfig, slog.Default(), opts...)

			repository := owner + "/" + repo
			server := webhook.NewServer(cfg, repository, cmd.String("branch"), slog.Default(), syncWorker)

			return server.Start(ctx)
		},
	}
}

// resolveStorePath returns the store path from GHS_DIR env var or --store-path flag.
func resolveStorePath(cmd *cli.Command) string {
	// GHS_DIR env var takes precedence
	if ghsDir := os.Getenv("GHS_DIR"); ghsDir != "" {
		return ghsDir
	}

	storePath := cmd.String("store-path")
	if storePath == "" {
		storePath = "mirror"
	}
	return storePath
}

// repoArgs returns the owner and repository from the command flags.
func repoArgs(cmd *cli.Command) (string, string, error) {
	owner := cmd.String("owner")
	if owner == "" {
		return "", "", apperrors.ErrOwnerRequired
	}
	repo := cmd.String("repo")
	if repo == "" {
		return "", "", apperrors.ErrRepoRequired
	}
	return owner, repo, nil
}

// pathArg returns the positional path argument at index i.
func pathArg(cmd *cli.Command, i int) (string, error) {
	if cmd.Args().Len() <= i {
		return "", apperrors.ErrPathRequired
	}
	return cmd.Args().Get(i), nil
}

// srcDstArgs returns the two positional path arguments of cp and mv.
func srcDstArgs(cmd *cli.Command) (string, string, error) {
	if cmd.Args().Len() < 2 {
		return "", "", apperrors.ErrPathRequired
	}
	return cmd.Args().Get(0), cmd.Args().Get(1), nil
}

// commitOptions collects the mutation flags into commit options.
func commitOptions(cmd *cli.Command) *store.CommitOptions {
	return &store.CommitOptions{
		Message:     cmd.String("message"),
		Branch:      cmd.String("branch"),
		AuthorName:  cmd.String("author-name"),
		AuthorEmail: cmd.String("author-email"),
	}
}

// setupFileStore creates the remote file store from command flags.
func setupFileStore(cmd *cli.Command) (*store.FileStore, string, string, error) {
	owner, repo, err := repoArgs(cmd)
	if err != nil {
		return nil, "", "", err
	}

	token := cmd.String("token")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	provider := github.NewTokenProvider(token, github.WithLogger(slog.Default()))
	files := store.NewFileStore(provider,
		store.WithLogger(slog.Default()),
		store.WithDefaultBranch(cmd.String("branch")))

	return files, owner, repo, nil
}

// setupLocalStore creates the local git-backed mirror store from command
// flags and environment configuration.
func setupLocalStore(cmd *cli.Command) (*store.LocalStore, *store.RemoteConfig, error) {
	storePath := resolveStorePath(cmd)
	remoteConfig := store.LoadRemoteConfig(konfig)

	localStore, err := store.NewLocalStore(storePath,
		store.WithStoreLogger(slog.Default()),
		store.WithRemoteConfig(remoteConfig))
	if err != nil {
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return localStore, remoteConfig, nil
}
