package app

import (
	"io"

	"github.com/urfave/cli/v2"

	"github.com/Daison12121/tilda-backend/internal/config"
)

// appName はバイナリ名。
const appName = "tilda-backend"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れトークンのクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// newCLIApp はサブコマンドを定義したCLIアプリケーションを生成する。
// サブコマンドが指定されない場合はserveとして動作する。
func newCLIApp(w io.Writer) *cli.App {
	serveFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "cleanup",
			Usage:   "run the expired token cleanup in the API process",
			EnvVars: []string{"SERVE_CLEANUP"},
		},
	}

	return &cli.App{
		Name:            appName,
		Usage:           "session token bridge between Tilda pages and Supabase",
		Writer:          w,
		ErrWriter:       w,
		HideHelpCommand: true,
		Flags:           serveFlags,
		Action: func(c *cli.Context) error {
			return serveAction(c, w)
		},
		Commands: []*cli.Command{
			{
				Name:  string(CommandServe),
				Usage: "start the HTTP API server",
				Flags: serveFlags,
				Action: func(c *cli.Context) error {
					return serveAction(c, w)
				},
			},
			{
				Name:  string(CommandWorker),
				Usage: "periodically delete expired tokens",
				Action: func(c *cli.Context) error {
					cfg, err := Init(w)
					if err != nil {
						return err
					}
					return runWorker(c.Context, cfg)
				},
			},
			{
				Name:  string(CommandMigrate),
				Usage: "apply database migrations to DATABASE_URL",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "down",
						Usage: "roll back `N` migrations instead of applying",
					},
					&cli.BoolFlag{
						Name:  "status",
						Usage: "print the current migration version and exit",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := Init(w)
					if err != nil {
						return err
					}
					return runMigrate(cfg, migrateOptions{
						Down:   c.Int("down"),
						Status: c.Bool("status"),
					})
				},
			},
			{
				Name:  string(CommandHealthcheck),
				Usage: "check /health on the local server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "port of the local server",
						Value: config.ServerPort(),
					},
				},
				// 軽量サブコマンドのため、フル初期化をスキップする
				Action: func(c *cli.Context) error {
					return runHealthcheck(c.String("port"))
				},
			},
		},
	}
}

func serveAction(c *cli.Context, w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	return runServe(c.Context, cfg, serveOptions{Cleanup: c.Bool("cleanup")})
}
