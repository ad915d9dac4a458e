package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nickyhof/GitDB"
	"github.com/nickyhof/GitDB/config"
	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/db"
	"github.com/nickyhof/GitDB/logger"
	"github.com/nickyhof/GitDB/op"
	"go.uber.org/zap"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

// CLI holds the CLI state
type CLI struct {
	manager     *db.Manager
	out         io.Writer
	configPath  string // where .connect stores credentials, empty to skip
	history     []string
	historyFile string
	collection  *op.CollectionOp // current collection context
}

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to the configuration file")
	backend := flag.String("backend", "", "Backing store: github, git, memory or s3 (overrides config)")
	gitDir := flag.String("dir", "", "Repository directory for the git backend")
	script := flag.String("file", "", "Command file to execute (non-interactive)")
	logLevel := flag.String("logLevel", "WARN", "Log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("%sError: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if *gitDir != "" {
		cfg.Git.Dir = *gitDir
	}

	log := logger.New(*logLevel, logger.ParseFormat(cfg.Log.Format)).Named(logger.ComponentCLI)
	defer log.Sync() //nolint:errcheck

	instance, err := GitDB.Open(cfg, GitDB.WithLogger(log))
	if err != nil {
		fmt.Printf("%sError: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}

	cli := &CLI{
		manager:     instance.Manager,
		out:         os.Stdout,
		configPath:  *configPath,
		history:     make([]string, 0),
		historyFile: getHistoryPath(),
	}

	if *script != "" {
		if err := cli.importFile(*script); err != nil {
			fmt.Printf("%sError importing file: %v%s\n", ErrorColor, err, ResetColor)
			os.Exit(1)
		}
		return
	}

	printBanner(cfg)
	cli.loadHistory()
	cli.run(os.Stdin)
	cli.saveHistory()
	log.Debug("Shell closed", zap.Int("history", len(cli.history)))
}

func printBanner(cfg *config.Config) {
	fmt.Println()
	bannerWidth := 39 // inner width of the banner box
	versionLine := fmt.Sprintf("GitDB v%s", Version)
	padding := bannerWidth - len(versionLine) - 2 // -2 for "  " margins
	if padding < 0 {
		padding = 0
	}
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Printf("%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Printf("%s%s║   Git-backed Document Database        ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
	fmt.Printf("Backend: %s\n", cfg.Backend)
	fmt.Println("Type .help for commands, .quit to exit")
	fmt.Println()
}

func (cli *CLI) run(in io.Reader) {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(cli.out, cli.getPrompt())

		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			fmt.Fprintf(cli.out, "\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		cli.addToHistory(input)

		if err := cli.Execute(context.Background(), input); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintf(cli.out, "%sGoodbye!%s\n", SuccessColor, ResetColor)
				return
			}
			cli.printError(err)
		}
	}
}

func (cli *CLI) getPrompt() string {
	collectionPart := ""
	if cli.collection != nil {
		collectionPart = fmt.Sprintf(" (%s)", cli.collection.Name)
	}
	return fmt.Sprintf("%sgitdb%s>%s ", PromptColor, collectionPart, ResetColor)
}

func (cli *CLI) printError(err error) {
	fmt.Fprintf(cli.out, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
}

func (cli *CLI) printSuccess(format string, args ...any) {
	fmt.Fprintf(cli.out, "%s✓ %s%s\n", SuccessColor, fmt.Sprintf(format, args...), ResetColor)
}

func (cli *CLI) printDocument(doc core.Document) {
	data, err := core.EncodeDocument(doc)
	if err != nil {
		cli.printError(err)
		return
	}
	fmt.Fprintln(cli.out, string(data))
}

// Execute runs one shell line.
func (cli *CLI) Execute(ctx context.Context, input string) error {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)

	if strings.HasPrefix(name, ".") {
		return cli.handleCommand(ctx, name, args)
	}
	return cli.handleDocumentCommand(ctx, name, args)
}

func (cli *CLI) database() *op.DatabaseOp {
	return &op.DatabaseOp{Manager: cli.manager}
}

func (cli *CLI) handleCommand(ctx context.Context, name, args string) error {
	parts := strings.Fields(args)

	switch name {
	case ".quit", ".exit", ".q":
		return errQuit

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".connect":
		if len(parts) != 3 {
			return errors.New("usage: .connect <token> <owner> <repo>")
		}
		return cli.connect(ctx, core.Credentials{Token: parts[0], Owner: parts[1], Repo: parts[2]})

	case ".disconnect":
		cli.manager.Disconnect()
		cli.collection = nil
		cli.printSuccess("Disconnected")

	case ".status":
		status := cli.manager.Status()
		if !status.Connected {
			fmt.Fprintln(cli.out, "Not connected")
			return nil
		}
		fmt.Fprintf(cli.out, "Connected to %s/%s since %s\n", status.Owner, status.Repo, status.ConnectedAt.Format("2006-01-02 15:04:05 MST"))

	case ".collections", ".ls":
		result, err := cli.database().Collections(ctx)
		if err != nil {
			return err
		}
		result.Display(cli.out)

	case ".create":
		if len(parts) != 1 {
			return errors.New("usage: .create <name>")
		}
		collection, result, err := cli.database().CreateCollection(ctx, parts[0])
		if err != nil {
			return err
		}
		cli.collection = collection
		result.Display(cli.out)

	case ".drop":
		if len(parts) != 1 {
			return errors.New("usage: .drop <name>")
		}
		result, err := cli.database().DropCollection(ctx, parts[0])
		if err != nil {
			return err
		}
		if cli.collection != nil && cli.collection.Name == parts[0] {
			cli.collection = nil
		}
		result.Display(cli.out)

	case ".use":
		if len(parts) != 1 {
			return errors.New("usage: .use <collection>")
		}
		collection, err := cli.database().Collection(ctx, parts[0])
		if err != nil {
			return err
		}
		cli.collection = collection
		cli.printSuccess("Using collection: %s", collection.Name)

	case ".log":
		if len(parts) < 1 || len(parts) > 2 {
			return errors.New("usage: .log <id> [limit]")
		}
		limit := 0
		if len(parts) == 2 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid limit: %s", parts[1])
			}
			limit = n
		}
		return cli.printLog(ctx, parts[0], limit)

	case ".info":
		info, err := cli.manager.DatabaseInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "Database:    %s\n", info.Name)
		fmt.Fprintf(cli.out, "Collections: %s\n", strings.Join(info.Collections, ", "))
		fmt.Fprintf(cli.out, "Cached:      %d documents\n", info.CacheSize)
		if info.LastCommit != nil {
			fmt.Fprintf(cli.out, "Last commit: %s %s\n", shortHash(info.LastCommit.Id), strings.TrimSpace(info.LastCommit.Message))
		}

	case ".import":
		if len(parts) != 1 {
			return errors.New("usage: .import <file>")
		}
		return cli.importFile(parts[0])

	case ".export":
		if len(parts) != 1 {
			return errors.New("usage: .export <file>")
		}
		return cli.exportFile(ctx, parts[0])

	case ".history":
		cli.printHistory()

	case ".clear", ".cls":
		fmt.Fprint(cli.out, "\033[H\033[2J")

	case ".version":
		fmt.Fprintf(cli.out, "GitDB version %s\n", Version)

	default:
		return fmt.Errorf("unknown command: %s (type .help for commands)", name)
	}
	return nil
}

func (cli *CLI) connect(ctx context.Context, creds core.Credentials) error {
	if _, err := cli.manager.Connect(ctx, creds); err != nil {
		return err
	}
	if _, err := op.Open(ctx, cli.manager); err != nil {
		return err
	}
	cli.collection = nil
	cli.printSuccess("Connected to %s", creds)

	if cli.configPath != "" {
		if err := config.SaveCredentials(cli.configPath, creds); err != nil {
			return fmt.Errorf("connected, but failed to save credentials: %w", err)
		}
	}
	return nil
}

func (cli *CLI) printLog(ctx context.Context, id string, limit int) error {
	collection, err := cli.currentCollection()
	if err != nil {
		return err
	}
	history, err := collection.History(ctx, id, limit)
	if err != nil {
		return err
	}

	rows := make([][]string, len(history))
	for i, txn := range history {
		rows[i] = []string{shortHash(txn.Id), txn.When.Format("2006-01-02 15:04:05"), txn.Author, strings.TrimSpace(txn.Message)}
	}
	table := db.NewTable(cli.out)
	table.Header([]string{"commit", "date", "author", "message"})
	table.Bulk(rows)
	table.Render()
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func (cli *CLI) currentCollection() (*op.CollectionOp, error) {
	if cli.collection == nil {
		return nil, errors.New("no collection selected (use .use <collection>)")
	}
	return cli.collection, nil
}

func (cli *CLI) handleDocumentCommand(ctx context.Context, name, args string) error {
	switch name {
	case "help":
		cli.printHelp()
		return nil
	case "exit", "quit":
		return errQuit
	}

	collection, err := cli.currentCollection()
	if err != nil {
		return err
	}

	switch name {
	case "insert":
		doc, err := parseDocument(args)
		if err != nil {
			return err
		}
		created, err := collection.Insert(ctx, doc)
		if err != nil {
			return err
		}
		cli.printSuccess("Inserted %s", created.ID())
		cli.printDocument(created)

	case "get":
		if args == "" {
			return errors.New("usage: get <id>")
		}
		doc, err := collection.Get(ctx, args)
		if err != nil {
			return err
		}
		cli.printDocument(doc)

	case "update":
		id, body, _ := strings.Cut(args, " ")
		if id == "" {
			return errors.New("usage: update <id> <json>")
		}
		patch, err := parseDocument(body)
		if err != nil {
			return err
		}
		doc, err := collection.Update(ctx, id, patch)
		if err != nil {
			return err
		}
		cli.printSuccess("Updated %s", id)
		cli.printDocument(doc)

	case "delete":
		if args == "" {
			return errors.New("usage: delete <id>")
		}
		if err := collection.Delete(ctx, args); err != nil {
			return err
		}
		cli.printSuccess("Deleted %s", args)

	case "find":
		values, err := parseJSONArgs(args)
		if err != nil {
			return err
		}
		q, opts, err := findArgs(values)
		if err != nil {
			return err
		}
		result, err := collection.Find(ctx, q, opts)
		if err != nil {
			return err
		}
		result.Display(cli.out)

	case "findone":
		q, err := parseOptionalQuery(args)
		if err != nil {
			return err
		}
		doc, err := collection.FindOne(ctx, q)
		if err != nil {
			return err
		}
		cli.printDocument(doc)

	case "count":
		q, err := parseOptionalQuery(args)
		if err != nil {
			return err
		}
		n, err := collection.Count(ctx, q)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d documents\n", n)

	case "distinct":
		field, rest, _ := strings.Cut(args, " ")
		if field == "" {
			return errors.New("usage: distinct <field> [json]")
		}
		q, err := parseOptionalQuery(rest)
		if err != nil {
			return err
		}
		result, err := collection.Distinct(ctx, field, q)
		if err != nil {
			return err
		}
		result.Display(cli.out)

	case "updatemany":
		values, err := parseJSONArgs(args)
		if err != nil {
			return err
		}
		if len(values) != 2 {
			return errors.New("usage: updatemany <filter json> <update json>")
		}
		patch, ok := values[1].(map[string]any)
		if !ok {
			return errors.New("update must be a JSON object")
		}
		result, err := collection.UpdateMany(ctx, values[0], core.Document(patch))
		if err != nil {
			return err
		}
		result.Display(cli.out)

	case "deletemany":
		q, err := parseOptionalQuery(args)
		if err != nil {
			return err
		}
		result, err := collection.DeleteMany(ctx, q)
		if err != nil {
			return err
		}
		result.Display(cli.out)

	case "list":
		ids, err := collection.Keys(ctx)
		if err != nil {
			return err
		}
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = id
		}
		db.QueryResult{Column: core.IDField, Values: values}.Display(cli.out)

	default:
		return fmt.Errorf("unknown command: %s (type .help for commands)", name)
	}
	return nil
}

// parseJSONArgs decodes the whitespace-separated JSON values of s.
func parseJSONArgs(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var values []any
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid JSON argument: %w", err)
		}
		values = append(values, v)
	}
}

func parseDocument(s string) (core.Document, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("a JSON object is required")
	}
	return core.DecodeDocument([]byte(s))
}

// parseOptionalQuery returns nil for an empty argument.
func parseOptionalQuery(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return parseDocument(s)
}

// findArgs interprets "find [query] [limit]".
func findArgs(values []any) (any, db.FindOptions, error) {
	var (
		q    any
		opts db.FindOptions
	)
	for i, v := range values {
		switch val := v.(type) {
		case map[string]any:
			if i != 0 {
				return nil, opts, errors.New("usage: find [json] [limit]")
			}
			q = val
		case float64:
			if val < 0 || val != float64(int(val)) {
				return nil, opts, fmt.Errorf("invalid limit %s", strconv.FormatFloat(val, 'f', -1, 64))
			}
			opts.Limit = int(val)
		default:
			return nil, opts, errors.New("usage: find [json] [limit]")
		}
	}
	return q, opts, nil
}

func (cli *CLI) printHelp() {
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sSpecial Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  .help, .h                       Show this help message")
	fmt.Fprintln(cli.out, "  .quit, .exit                    Exit the CLI")
	fmt.Fprintln(cli.out, "  .connect <token> <owner> <repo> Connect to a repository and save the credentials")
	fmt.Fprintln(cli.out, "  .disconnect                     Drop the current connection")
	fmt.Fprintln(cli.out, "  .status                         Show the connection")
	fmt.Fprintln(cli.out, "  .collections                    List collections")
	fmt.Fprintln(cli.out, "  .create <name>                  Create a collection and use it")
	fmt.Fprintln(cli.out, "  .drop <name>                    Delete a collection and its documents")
	fmt.Fprintln(cli.out, "  .use <name>                     Set the current collection")
	fmt.Fprintln(cli.out, "  .log <id> [limit]               Show the commits of a document")
	fmt.Fprintln(cli.out, "  .info                           Show database info")
	fmt.Fprintln(cli.out, "  .import <file>                  Execute commands from a file")
	fmt.Fprintln(cli.out, "  .export <file>                  Write the current collection as JSON lines")
	fmt.Fprintln(cli.out, "  .history                        Show command history")
	fmt.Fprintln(cli.out, "  .clear                          Clear the screen")
	fmt.Fprintln(cli.out, "  .version                        Show version info")
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sDocument Commands (current collection):%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  insert <json>")
	fmt.Fprintln(cli.out, "  get <id>")
	fmt.Fprintln(cli.out, "  update <id> <json>")
	fmt.Fprintln(cli.out, "  delete <id>")
	fmt.Fprintln(cli.out, "  find [query] [limit]")
	fmt.Fprintln(cli.out, "  findone <query>")
	fmt.Fprintln(cli.out, "  count [query]")
	fmt.Fprintln(cli.out, "  distinct <field> [query]")
	fmt.Fprintln(cli.out, "  updatemany <filter> <update>")
	fmt.Fprintln(cli.out, "  deletemany [filter]")
	fmt.Fprintln(cli.out, "  list")
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sQuery operators:%s $eq $ne $gt $gte $lt $lte $in $nin $exists $regex\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out)
}

func (cli *CLI) addToHistory(cmd string) {
	// Don't add duplicates of the last command
	if len(cli.history) > 0 && cli.history[len(cli.history)-1] == cmd {
		return
	}
	cli.history = append(cli.history, cmd)

	// Limit history size
	if len(cli.history) > 1000 {
		cli.history = cli.history[len(cli.history)-1000:]
	}
}

func (cli *CLI) printHistory() {
	if len(cli.history) == 0 {
		fmt.Fprintln(cli.out, "No command history")
		return
	}

	start := 0
	if len(cli.history) > 20 {
		start = len(cli.history) - 20
	}

	for i := start; i < len(cli.history); i++ {
		fmt.Fprintf(cli.out, "  %3d  %s\n", i+1, cli.history[i])
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gitdb_history")
}

func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		cli.history = append(cli.history, scanner.Text())
	}
}

func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Create(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	// Save last 1000 entries
	start := 0
	if len(cli.history) > 1000 {
		start = len(cli.history) - 1000
	}

	for i := start; i < len(cli.history); i++ {
		_, _ = file.WriteString(cli.history[i] + "\n")
	}
}

// importFile executes the commands of a file, one per line. Blank lines and
// lines starting with # or // are skipped.
func (cli *CLI) importFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer file.Close()

	successCount := 0
	errorCount := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		if err := cli.Execute(context.Background(), line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintf(cli.out, "%s[%d] ✗ %s%s\n", ErrorColor, lineNo, truncate(line, 50), ResetColor)
			fmt.Fprintf(cli.out, "      Error: %v\n", err)
			errorCount++
			continue
		}
		successCount++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	fmt.Fprintf(cli.out, "\n%s✓ Import complete: %d succeeded, %d failed%s\n",
		SuccessColor, successCount, errorCount, ResetColor)
	return nil
}

// exportFile writes every document of the current collection to filename,
// one JSON object per line.
func (cli *CLI) exportFile(ctx context.Context, filename string) error {
	collection, err := cli.currentCollection()
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	count := 0
	for doc, err := range collection.Scan(ctx, nil) {
		if err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	cli.printSuccess("Exported %d documents to %s", count, filename)
	return nil
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
