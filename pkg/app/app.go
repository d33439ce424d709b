package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zurustar/ucvm/pkg/charset"
	"github.com/zurustar/ucvm/pkg/cli"
	"github.com/zurustar/ucvm/pkg/config"
	"github.com/zurustar/ucvm/pkg/fileutil"
	"github.com/zurustar/ucvm/pkg/kernel"
	"github.com/zurustar/ucvm/pkg/logger"
	"github.com/zurustar/ucvm/pkg/opcode"
	"github.com/zurustar/ucvm/pkg/savegame"
	"github.com/zurustar/ucvm/pkg/usecode"
	"github.com/zurustar/ucvm/pkg/vm"
	"github.com/zurustar/ucvm/pkg/world"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	args    *cli.Config
	conf    *config.Config
	log     *slog.Logger
	out     io.Writer
	logOut  io.Writer
	ruleset vm.Ruleset
	codec   *charset.Codec
	image   *usecode.Image
	world   *world.World
	machine *vm.Machine
	kernel  *kernel.Kernel
}

// New Applicationを作成（結果はstdout、ログもstdoutへ出力）
func New() *Application {
	return NewWithOutput(os.Stdout, os.Stdout)
}

// NewWithOutput 出力先を指定してApplicationを作成
func NewWithOutput(out, logOut io.Writer) *Application {
	return &Application{out: out, logOut: logOut}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.args.ShowHelp {
		cli.PrintHelp()
		return nil
	}
	if app.args.ImagePath == "" {
		return errors.New("no usecode image given")
	}

	// 2. 設定ファイルの読み込み（コマンドラインが優先）
	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// 4. usecodeイメージの読み込み
	if err := app.loadImage(); err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	app.log.Info("Image loaded", "path", app.args.ImagePath, "classes", len(app.image.Classes), "ruleset", app.ruleset)

	// 逆アセンブルのみの場合はここで終了
	if app.args.Disasm {
		return app.disassemble()
	}

	// 5. ワールド・マシン・カーネルの構築
	if err := app.build(); err != nil {
		return fmt.Errorf("failed to build machine: %w", err)
	}

	// 6. セーブデータの読み込み
	if app.args.LoadPath != "" {
		if err := savegame.ReadFile(app.args.LoadPath, app.machine); err != nil {
			return fmt.Errorf("failed to load save: %w", err)
		}
		app.log.Info("Save loaded", "path", app.args.LoadPath)
	}

	// 7. エントリープロセスの実行
	if err := app.runEntry(); err != nil {
		return err
	}

	// 8. セーブデータの書き出し
	if app.args.SavePath != "" {
		if err := savegame.WriteFile(app.args.SavePath, app.machine); err != nil {
			return fmt.Errorf("failed to write save: %w", err)
		}
		app.log.Info("Save written", "path", app.args.SavePath)
	}

	if app.args.ShowStats {
		app.printStats()
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.args = config
	return nil
}

// loadConfig 設定ファイルを読み込み、明示されたフラグで上書きする
func (app *Application) loadConfig() error {
	var err error
	if app.args.ConfigPath != "" {
		app.conf, err = config.Load(app.args.ConfigPath)
	} else {
		app.conf, err = config.FindAndLoad(filepath.Dir(app.args.ImagePath))
	}
	if err != nil {
		return err
	}

	c, a := app.conf, app.args
	if a.Explicit("log-level") {
		c.LogLevel = a.LogLevel
	}
	if a.Explicit("ruleset") {
		c.Ruleset = a.Ruleset
	}
	if a.Explicit("timeout") {
		c.Kernel.Timeout = a.Timeout
	}
	if a.Explicit("max-ticks") {
		c.Kernel.MaxTicks = uint32(a.MaxTicks)
	}
	if a.Explicit("class") {
		c.Entry.Class = uint16(a.Class)
	}
	if a.Explicit("offset") {
		c.Entry.Offset = uint16(a.Offset)
	}
	if a.Trace {
		c.Trace.Enabled = true
	}
	return c.Validate()
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLoggerWithWriter(app.conf.LogLevel, app.logOut); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// loadImage イメージを読み込み、ルールセットを決定する
func (app *Application) loadImage() error {
	path, err := fileutil.ResolvePath(app.args.ImagePath)
	if err != nil {
		return err
	}
	img, err := usecode.LoadFile(path)
	if err != nil {
		return err
	}
	app.image = img

	name := app.conf.Ruleset
	// ルールセットが明示されていなければイメージの指定を使う
	if !app.args.Explicit("ruleset") && img.Ruleset != "" {
		name = img.Ruleset
	}
	app.ruleset, err = vm.ParseRuleset(name)
	if err != nil {
		return err
	}
	if img.Ruleset != "" && img.Ruleset != app.ruleset.String() {
		app.log.Warn("Image was built for another ruleset", "image", img.Ruleset, "ruleset", app.ruleset)
	}

	app.codec, err = charset.Lookup(app.conf.Charset)
	return err
}

// disassemble エントリークラスを逆アセンブルして出力
func (app *Application) disassemble() error {
	class := app.conf.Entry.Class
	code := app.image.Code(class)
	if code == nil {
		return fmt.Errorf("class %04X not in image", class)
	}
	fmt.Fprintf(app.out, "class %04X (%d bytes)\n", class, len(code))
	return opcode.Disassemble(app.out, code)
}

// build ワールド・マシン・カーネルを構築
func (app *Application) build() error {
	app.world = world.New(world.WithLogger(app.log))
	for _, it := range app.conf.World.Items {
		if err := app.world.Add(world.Item{
			ID: it.ID, Shape: it.Shape, Frame: it.Frame, Quality: it.Quality,
			X: it.X, Y: it.Y, Z: it.Z, XLen: it.XLen, YLen: it.YLen, ZLen: it.ZLen,
			Container: it.Container,
		}); err != nil {
			return fmt.Errorf("world: %w", err)
		}
	}

	// アバター名はゲームの文字コードで保持する
	name, err := app.codec.Encode(app.conf.AvatarName)
	if err != nil {
		return fmt.Errorf("avatar name: %w", err)
	}

	opts := []vm.Option{
		vm.WithRuleset(app.ruleset),
		vm.WithLogger(app.log),
		vm.WithWorld(app.world),
		vm.WithStackSize(app.conf.StackSize),
		vm.WithAvatarName(string(name)),
	}
	for fname, id := range app.conf.Intrinsics {
		fn, _ := vm.BuiltinIntrinsic(fname)
		opts = append(opts, vm.WithIntrinsic(id, fn))
	}
	if app.conf.Trace.Enabled {
		opts = append(opts, vm.WithTrace(app.conf.Trace.PIDs, app.conf.Trace.Classes))
	}

	app.machine = vm.New(app.image, opts...)
	app.kernel = kernel.New(app.machine, kernel.WithLogger(app.log))
	return nil
}

// runEntry エントリープロセスを起動し、終了・タイムアウト・ティック上限まで実行
func (app *Application) runEntry() error {
	entry := app.conf.Entry
	offset := entry.Offset
	if app.ruleset.EventCalls() {
		offset = app.image.ClassEvent(entry.Class, entry.Offset)
	}

	var this vm.Pointer
	thisSize := 0
	if entry.Item != 0 {
		this = vm.ObjectPtr(entry.Item)
		thisSize = 2
	}
	p, err := app.machine.NewProcess(entry.Class, offset, this, thisSize, nil)
	if err != nil {
		return fmt.Errorf("failed to start entry %04X:%04X: %w", entry.Class, offset, err)
	}
	pid := app.kernel.Add(p)
	app.log.Info("Entry process started", "pid", pid, "class", entry.Class, "offset", offset, "item", entry.Item)

	ctx := context.Background()
	if app.conf.Kernel.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.conf.Kernel.Timeout)
		defer cancel()
	}

	err = app.kernel.Run(ctx, app.conf.Kernel.MaxTicks)
	switch {
	case err == nil:
		app.log.Info("All processes finished", "ticks", app.kernel.Tick())
	case errors.Is(err, context.DeadlineExceeded):
		app.log.Info("Timeout reached, terminating", "ticks", app.kernel.Tick(), "processes", app.kernel.Count())
	case errors.Is(err, kernel.ErrTickLimit):
		app.log.Info("Tick limit reached, terminating", "ticks", app.kernel.Tick(), "processes", app.kernel.Count())
	case errors.Is(err, kernel.ErrStalled):
		app.log.Warn("Processes stalled", "ticks", app.kernel.Tick(), "processes", app.kernel.Count())
	default:
		return fmt.Errorf("kernel: %w", err)
	}
	return nil
}

// printStats ヒープ統計と文字列の内容を出力
func (app *Application) printStats() {
	st := app.machine.Stats()
	fmt.Fprintf(app.out, "ticks:     %d\n", app.kernel.Tick())
	fmt.Fprintf(app.out, "processes: %d\n", app.kernel.Count())
	fmt.Fprintf(app.out, "strings:   %d/%d\n", st.Strings, st.MaxHandles)
	fmt.Fprintf(app.out, "lists:     %d/%d\n", st.Lists, st.MaxHandles)
	fmt.Fprintf(app.out, "globals:   %d\n", st.GlobalsSize)
	h := app.machine.Heap()
	for _, id := range h.StringHandles() {
		fmt.Fprintf(app.out, "  string %d: %q\n", id, app.codec.Display([]byte(h.String(id))))
	}
}
