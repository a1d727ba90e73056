package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/config"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

// runMigrate 处理 migrate 子命令
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "up":
		withMigrator("up", rest, func(ctx context.Context, cli *migration.CLI) error { return cli.RunUp(ctx) })
	case "down":
		runMigrateDown(rest)
	case "status":
		withMigrator("status", rest, func(ctx context.Context, cli *migration.CLI) error { return cli.RunStatus(ctx) })
	case "version":
		withMigrator("version", rest, func(ctx context.Context, cli *migration.CLI) error { return cli.RunVersion(ctx) })
	case "steps":
		n := positional("steps", rest, 64)
		withMigrator("steps", rest[1:], func(ctx context.Context, cli *migration.CLI) error { return cli.RunSteps(ctx, int(n)) })
	case "goto":
		v := positional("goto", rest, 32)
		if v < 0 {
			fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", rest[0])
			os.Exit(1)
		}
		withMigrator("goto", rest[1:], func(ctx context.Context, cli *migration.CLI) error { return cli.RunGoto(ctx, uint(v)) })
	case "force":
		v := positional("force", rest, 32)
		withMigrator("force", rest[1:], func(ctx context.Context, cli *migration.CLI) error { return cli.RunForce(ctx, int(v)) })
	case "reset":
		withMigrator("reset", rest, func(ctx context.Context, cli *migration.CLI) error { return cli.RunDownAll(ctx) })
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  echosys migrate <subcommand> [options]

Subcommands:
  up              Apply all pending migrations
  down [--all]    Rollback the last migration (or all of them)
  steps <n>       Apply n migrations (negative n rolls back)
  status          Show migration status
  version         Show current migration version
  goto <version>  Migrate to a specific version
  force <version> Force set migration version (use with caution)
  reset           Rollback all migrations

Options:
  --config <path>     Path to configuration file (YAML)
  --env <path>        Path to .env file (default .env, ignored when missing)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  echosys migrate up
  echosys migrate up --config /etc/echosys/config.yaml
  echosys migrate down --all
  echosys migrate goto 1 --db-type sqlite --db-url sqlite3://echosys.db`)
}

// positional 解析子命令的首个数字参数
func positional(name string, args []string, bits int) int64 {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: echosys migrate %s <number>\n", name)
		os.Exit(1)
	}
	n, err := strconv.ParseInt(args[0], 10, bits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid number: %s\n", args[0])
		os.Exit(1)
	}
	return n
}

// migrateFlags 所有子命令共用的连接参数
type migrateFlags struct {
	configPath *string
	envFile    *string
	dbType     *string
	dbURL      *string
}

func newMigrateFlags(fs *flag.FlagSet) migrateFlags {
	return migrateFlags{
		configPath: fs.String("config", "", "Path to config file"),
		envFile:    fs.String("env", ".env", "Path to .env file"),
		dbType:     fs.String("db-type", "", "Database type (postgres, mysql, sqlite)"),
		dbURL:      fs.String("db-url", "", "Database connection URL"),
	}
}

// migrator 优先使用 --db-type/--db-url，否则从配置构建
func (f migrateFlags) migrator(logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if *f.dbType != "" && *f.dbURL != "" {
		return migration.NewMigratorFromURL(*f.dbType, *f.dbURL, logger)
	}
	cfg, err := loadConfig(*f.configPath, *f.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *f.dbType != "" {
		cfg.Database.Driver = *f.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// withMigrator 解析参数、创建迁移器并执行 fn，失败时退出
func withMigrator(name string, args []string, fn func(context.Context, *migration.CLI) error) {
	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	flags := newMigrateFlags(fs)
	_ = fs.Parse(args)
	execMigration(name, flags, fn)
}

func runMigrateDown(args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")
	flags := newMigrateFlags(fs)
	_ = fs.Parse(args)

	execMigration("down", flags, func(ctx context.Context, cli *migration.CLI) error {
		if *all {
			return cli.RunDownAll(ctx)
		}
		return cli.RunDown(ctx)
	})
}

func execMigration(name string, flags migrateFlags, fn func(context.Context, *migration.CLI) error) {
	logCfg := config.DefaultLogConfig()
	logCfg.Format = "console"
	logCfg.Level = "warn"
	logger := initLogger(logCfg)
	defer func() { _ = logger.Sync() }()

	m, err := flags.migrator(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	err = fn(context.Background(), migration.NewCLI(m))
	_ = m.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", name, err)
		os.Exit(1)
	}
}
