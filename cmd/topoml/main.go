package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fractalmind-ai/topoml/internal/codec"
	"github.com/fractalmind-ai/topoml/internal/config"
	"github.com/fractalmind-ai/topoml/internal/corpus"
	"github.com/fractalmind-ai/topoml/internal/gateway"
	"github.com/fractalmind-ai/topoml/internal/notify"
	"github.com/fractalmind-ai/topoml/internal/store"
	"github.com/fractalmind-ai/topoml/pkg/protocol"
)

const usage = `usage: topoml <command> [flags] [args]

commands:
  vocab            build a vocabulary from the configured corpus and save it
  vocabs           list saved vocabularies
  encode [TEXT]    print code sequences for TEXT args, or stdin lines
  decode           read a JSON array of code sequences from stdin, print texts
  onehot [TEXT]    print one-hot matrices for TEXT args, or stdin lines
  serve            start the websocket gateway
`

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runWithContext(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

type app struct {
	cfg    *config.Config
	logger *log.Logger
	stdin  io.Reader
	stdout io.Writer
	args   []string
}

func runWithContext(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "", log.LstdFlags)

	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprint(stderr, usage)
		return 2
	}
	command := args[0]

	fs := flag.NewFlagSet("topoml "+command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "path to config file")
	name := fs.String("name", "", "vocabulary name (overrides store.vocabulary)")
	maxLength := fs.Int("max-length", 0, "one-hot rows per text (overrides codec.maxLength)")
	portOverride := fs.Int("port", 0, "override gateway port")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	if *verbose {
		logger.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	if *maxLength < 0 {
		logger.Printf("invalid -max-length %d: must not be negative", *maxLength)
		return 2
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		return 1
	}
	applyDefaults(cfg)

	if *name != "" {
		if err := store.ValidateName(*name); err != nil {
			logger.Printf("invalid -name: %v", err)
			return 2
		}
		cfg.Store.Vocabulary = *name
	}
	if *maxLength > 0 {
		cfg.Codec.MaxLength = *maxLength
	}
	if *portOverride > 0 {
		cfg.Gateway.Port = *portOverride
	}

	a := &app{cfg: cfg, logger: logger, stdin: stdin, stdout: stdout, args: fs.Args()}

	switch command {
	case "vocab":
		err = a.buildVocabulary(ctx)
	case "vocabs":
		err = a.listVocabularies(ctx)
	case "encode":
		err = a.encode(ctx)
	case "decode":
		err = a.decode(ctx)
	case "onehot":
		err = a.oneHot(ctx)
	case "serve":
		err = a.serve(ctx)
	default:
		logger.Printf("unknown command %q", command)
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		logger.Printf("%s failed: %v", command, err)
		return 1
	}
	return 0
}

func applyDefaults(cfg *config.Config) {
	defaults := config.DefaultConfig()
	if cfg.Corpus == nil {
		cfg.Corpus = defaults.Corpus
	}
	if cfg.Codec == nil {
		cfg.Codec = defaults.Codec
	}
	if cfg.Store == nil {
		cfg.Store = defaults.Store
	}
	if cfg.Gateway == nil {
		cfg.Gateway = defaults.Gateway
	}
}

func (a *app) openStore() (*store.Store, error) {
	path, err := store.ResolvePath(a.cfg.Store.Path, a.cfg.Corpus.CacheDir)
	if err != nil {
		return nil, err
	}
	return store.OpenStore(path)
}

func (a *app) loadCodec(ctx context.Context) (*codec.Codec, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	name := a.cfg.VocabularyName()
	c, err := st.LoadVocabulary(ctx, name)
	if errors.Is(err, store.ErrVocabularyNotFound) {
		return nil, fmt.Errorf("vocabulary %q not found; run `topoml vocab` first", name)
	}
	return c, err
}

func (a *app) buildVocabulary(ctx context.Context) error {
	started := time.Now()

	cacheDir, err := store.ResolveCacheDir(a.cfg.Corpus.CacheDir)
	if err != nil {
		return err
	}
	loader := corpus.NewLoader(a.cfg.Corpus, filepath.Join(cacheDir, "downloads"))
	defer loader.Close()

	texts, err := loader.Load(ctx, a.cfg.Corpus)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	a.logger.Printf("📄 Loaded %d texts", len(texts))

	c, err := codec.Build(texts)
	if err != nil {
		return fmt.Errorf("failed to build vocabulary: %w", err)
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	name := a.cfg.VocabularyName()
	if err := st.SaveVocabulary(ctx, name, c); err != nil {
		return err
	}

	summary := fmt.Sprintf("vocabulary %s: %d symbols from %d texts in %s",
		name, c.VocabSize(), len(texts), time.Since(started).Round(time.Millisecond))
	fmt.Fprintln(a.stdout, summary)

	notifier, err := notify.New(a.cfg.Notify)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	if err := notifier.Notify(ctx, "topoml vocab", summary); err != nil {
		a.logger.Printf("failed to send notification: %v", err)
	}
	return nil
}

func (a *app) listVocabularies(ctx context.Context) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListVocabularies(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Name, info.Size, info.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// texts returns the positional args, or stdin lines when there are none.
func (a *app) texts() ([]string, error) {
	if len(a.args) > 0 {
		return a.args, nil
	}
	var lines []string
	scanner := bufio.NewScanner(a.stdin)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return lines, nil
}

func (a *app) encode(ctx context.Context) error {
	c, err := a.loadCodec(ctx)
	if err != nil {
		return err
	}
	texts, err := a.texts()
	if err != nil {
		return err
	}
	seqs, err := c.Tokenize(texts)
	if err != nil {
		return err
	}
	return json.NewEncoder(a.stdout).Encode(protocol.TokenizeResult{Sequences: seqs})
}

func (a *app) decode(ctx context.Context) error {
	c, err := a.loadCodec(ctx)
	if err != nil {
		return err
	}
	var seqs [][]int
	if err := json.NewDecoder(a.stdin).Decode(&seqs); err != nil {
		return fmt.Errorf("failed to parse sequences: %w", err)
	}
	texts, err := c.Detokenize(seqs)
	if err != nil {
		return err
	}
	for _, text := range texts {
		fmt.Fprintln(a.stdout, text)
	}
	return nil
}

func (a *app) oneHot(ctx context.Context) error {
	c, err := a.loadCodec(ctx)
	if err != nil {
		return err
	}
	texts, err := a.texts()
	if err != nil {
		return err
	}
	maxLength := a.cfg.Codec.MaxLength
	if maxLength == 0 {
		maxLength = codec.MaxLength(texts)
	}
	matrices, err := c.OneHot(texts, maxLength)
	if err != nil {
		return err
	}
	return json.NewEncoder(a.stdout).Encode(protocol.OneHotResult{
		Shape:    []int{len(texts), maxLength, c.Width()},
		Matrices: matrices,
	})
}

func (a *app) serve(ctx context.Context) error {
	c, err := a.loadCodec(ctx)
	if err != nil {
		return err
	}

	server, err := gateway.NewServer(a.cfg.Gateway, c, a.cfg.VocabularyName())
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	a.logger.Printf("🚀 Serving vocabulary %s (%d symbols)", a.cfg.VocabularyName(), c.VocabSize())

	if err := server.Start(ctx); err != nil {
		if stopErr := server.Stop(); stopErr != nil {
			a.logger.Printf("gateway shutdown error: %v", stopErr)
		}
		return err
	}

	if err := server.Stop(); err != nil {
		return fmt.Errorf("gateway shutdown error: %w", err)
	}
	return nil
}
