package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	ImagePath  string        // usecodeイメージ（CBOR）のパス
	ConfigPath string        // 設定ファイル（ucvm.toml）のパス
	Ruleset    string        // ルールセット（u8, remorse, regret）
	LogLevel   string        // ログレベル（debug, info, warn, error）
	Timeout    time.Duration // タイムアウト時間（0は無制限）
	MaxTicks   uint          // 最大ティック数（0は無制限）
	Class      uint          // エントリークラス
	Offset     uint          // エントリーオフセット
	SavePath   string        // 実行後に保存するファイル
	LoadPath   string        // 実行前に読み込むファイル
	Disasm     bool          // 逆アセンブルのみ
	ShowStats  bool          // ヒープ統計を表示
	Trace      bool          // 命令トレース
	ShowHelp   bool          // ヘルプ表示フラグ

	explicit map[string]bool
}

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"h": true, "help": true,
	"disasm": true, "stats": true, "trace": true,
}

// canonical は短縮形のフラグ名を正式名に変換する
var canonical = map[string]string{
	"t": "timeout",
	"l": "log-level",
	"c": "config",
	"h": "help",
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("ucvm", flag.ContinueOnError)

	config := &Config{explicit: make(map[string]bool)}

	var timeoutSec int
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.ConfigPath, "config", "", "設定ファイル")
	fs.StringVar(&config.ConfigPath, "c", "", "設定ファイル（短縮形）")
	fs.StringVar(&config.Ruleset, "ruleset", "", "ルールセット（u8, remorse, regret）")
	fs.UintVar(&config.MaxTicks, "max-ticks", 0, "最大ティック数")
	fs.UintVar(&config.Class, "class", 0, "エントリークラス")
	fs.UintVar(&config.Offset, "offset", 0, "エントリーオフセット")
	fs.StringVar(&config.SavePath, "save", "", "実行後にグローバル・ヒープを保存")
	fs.StringVar(&config.LoadPath, "load", "", "実行前にグローバル・ヒープを読み込み")
	fs.BoolVar(&config.Disasm, "disasm", false, "エントリークラスを逆アセンブル")
	fs.BoolVar(&config.ShowStats, "stats", false, "ヒープ統計を表示")
	fs.BoolVar(&config.Trace, "trace", false, "命令トレースを有効化")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 明示的に指定されたフラグを記録（設定ファイルより優先するため）
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if c, ok := canonical[name]; ok {
			name = c
		}
		config.explicit[name] = true
	})

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if !config.explicit["timeout"] {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
				config.explicit["timeout"] = true
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if !config.explicit["log-level"] {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
			config.explicit["log-level"] = true
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	// クラス・オフセットは16ビット
	if config.Class > 0xFFFF || config.Offset > 0xFFFF {
		return nil, fmt.Errorf("class and offset must fit in 16 bits, got %#x:%#x", config.Class, config.Offset)
	}
	if config.MaxTicks > 0xFFFFFFFF {
		return nil, fmt.Errorf("max-ticks too large: %d", config.MaxTicks)
	}

	// 位置引数（usecodeイメージのパス）
	if fs.NArg() > 0 {
		config.ImagePath = fs.Arg(0)
	}

	return config, nil
}

// Explicit はフラグ（または対応する環境変数）が指定されたかを返す
func (c *Config) Explicit(name string) bool {
	return c.explicit[name]
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)

			// -flag=value の形式なら次の引数は値ではない
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") || boolFlags[name] {
				continue
			}
			// 次の引数が値である可能性をチェック（-t 5 のような場合）
			if i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `ucvm - usecode virtual machine

Usage:
  ucvm [options] <image.cbor>

Arguments:
  image.cbor    コンパイル済みusecodeイメージ

Options:
  -c, --config <file>         設定ファイル（省略時はucvm.tomlを上位ディレクトリまで検索）
  --ruleset <name>            ルールセット: u8, remorse, regret（デフォルト: u8）
  --class <n>                 エントリークラス
  --offset <n>                エントリーオフセット
  -t, --timeout <seconds>     指定秒数後に実行を中断（デフォルト: 無制限）
  --max-ticks <n>             指定ティック数で実行を中断（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --load <file>               実行前にグローバル・文字列・リストを読み込み
  --save <file>               実行後にグローバル・文字列・リストを保存
  --disasm                    実行せずにエントリークラスを逆アセンブル
  --stats                     実行後にヒープ統計を表示
  --trace                     命令トレースを有効化（debugログ）
  -h, --help                  このヘルプを表示

Environment Variables:
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル

Examples:
  ucvm game.cbor                        エントリーを最後まで実行
  ucvm --ruleset remorse --class 0x10 game.cbor
  ucvm --disasm --class 1 game.cbor     クラス1を逆アセンブル
  ucvm --save out.sav --stats game.cbor
`)
}
