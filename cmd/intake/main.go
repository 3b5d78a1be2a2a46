package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intake/internal/app"
	"intake/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Candidate intake service",
	Long: `intake turns job application webhooks into candidate conversations.
- Candidate: one person, matched by email address or phone number across applications.
- Conversation: the outreach dialogue for one candidate and one job; CREATED -> ONGOING -> COMPLETED.
- Admission: a candidate with a CREATED or ONGOING conversation cannot be admitted for another job,
  and a (candidate, job) pair is admitted at most once.
- Event log: audit trail of candidate and conversation changes, view with 'intake log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("INTAKE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory (holds intake.yml and the sqlite database)")
	flags.StringP("config", "c", "", "config file (default <workspace>/intake.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("db-driver", "", "database driver: sqlite or postgres")
	flags.String("dsn", "", "database DSN")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: json or console")
	for _, name := range []string{"workspace", "config", "json", "db-driver", "dsn", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(admitCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(conversationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
}

func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.Path(viper.GetString("workspace"))
}

// loadConfig reads the config file, if any, and overlays flags and INTAKE_*
// environment variables.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(configPath())
	if err != nil {
		return nil, err
	}
	overlay := map[string]*string{
		"workspace":  &cfg.Database.Workspace,
		"db-driver":  &cfg.Database.Driver,
		"dsn":        &cfg.Database.DSN,
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
		"addr":       &cfg.Server.Addr,
		"base-path":  &cfg.Server.BasePath,
		"jwt-secret": &cfg.Auth.JWTSecret,
	}
	for key, dst := range overlay {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetString(key)
		}
	}
	if keys := viper.GetString("api-keys"); keys != "" {
		cfg.Auth.APIKeys = strings.Split(keys, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := app.NewLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	ac, err := app.Open(cfg, log)
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
