package cli

import (
	"github.com/urfave/cli/v3"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func tenantFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "tenant",
		Usage:    "テナントID",
		Required: true,
	}
}

func topKFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "top-k",
		Usage: "検索件数（省略時は RETRIEVAL_DEFAULT_TOP_K）",
	}
}

// NewApp はコマンドツリーを組み立てる
func NewApp(version string) *cli.Command {
	return &cli.Command{
		Name:    "tenant-rag",
		Usage:   "マルチテナント対応の RAG チャットバックエンド",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "HTTPサーバコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート（省略時は SERVER_PORT）",
							},
						},
						Action: ServerStartAction,
					},
				},
			},
			{
				Name:      "migrate",
				Usage:     "データベースのマイグレーション",
				ArgsUsage: "up|down",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "steps",
						Usage: "適用するステップ数（0 はすべて）",
					},
				},
				Action: MigrateAction,
			},
			{
				Name:  "ingest",
				Usage: "テキストファイルをテナントに取り込む",
				Flags: []cli.Flag{
					envFlag(),
					tenantFlag(),
					&cli.StringFlag{
						Name:     "file",
						Usage:    "取り込むファイル（.txt / .md / .csv）",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "customer",
						Usage: "顧客ID（検索の絞り込みに使う）",
					},
				},
				Action: IngestAction,
			},
			{
				Name:      "ask",
				Usage:     "質問に回答する",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					envFlag(),
					tenantFlag(),
					topKFlag(),
					&cli.StringFlag{
						Name:  "customer",
						Usage: "顧客IDで検索を絞り込む",
					},
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "生成されたテキストを逐次出力",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照ソースを表示",
					},
				},
				Action: AskAction,
			},
			{
				Name:      "search",
				Usage:     "テナントのインデックスを検索",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					envFlag(),
					tenantFlag(),
					topKFlag(),
				},
				Action: SearchAction,
			},
		},
	}
}
