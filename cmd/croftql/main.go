// croftql is an interactive read-only SQL shell for a croft database.
//
// It opens the DuckDB file in read-only mode so it can run alongside a live
// croftd. Only SELECT-style statements are accepted; mutations belong to the
// API.
package main

import (
	"bufio"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/c-bata/go-prompt"
	_ "github.com/marcboeker/go-duckdb"
	"golang.org/x/term"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	dbPath := flag.String("db", "croft.db", "duckdb database path")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "croftql: cannot open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}

	db, err := sql.Open("duckdb", *dbPath+"?access_mode=read_only")
	if err != nil {
		fmt.Fprintf(os.Stderr, "croftql: open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "croftql: connect: %v\n", err)
		os.Exit(1)
	}

	sh := &shell{db: db}

	// Piped input runs in batch mode; a terminal gets the interactive prompt.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if err := sh.runBatch(os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "croftql: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("croftql %s (db=%s, read-only)\n", Version, *dbPath)
	fmt.Println(`Type \help for commands, exit to leave.`)
	sh.runInteractive()
}

// =============================================================================
// Shell
// =============================================================================

type shell struct {
	db *sql.DB
}

func (sh *shell) runInteractive() {
	p := prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionPrefix("croft> "),
		prompt.OptionTitle("croftql"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			cmd := strings.TrimSpace(strings.ToLower(in))
			return breakline && (cmd == "exit" || cmd == "quit" || cmd == `\q`)
		}),
	)
	p.Run()
}

// runBatch executes semicolon-separated statements from a reader.
func (sh *shell) runBatch(r *os.File) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	for _, stmt := range strings.Split(buf.String(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		if err := sh.runQuery(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) execute(in string) {
	in = strings.TrimSpace(in)
	if in == "" {
		return
	}

	lower := strings.ToLower(in)
	if lower == "exit" || lower == "quit" || lower == `\q` {
		fmt.Println("Bye")
		return
	}

	if strings.HasPrefix(in, `\`) {
		sh.executeMeta(in)
		return
	}

	if !readOnlyStatement(in) {
		fmt.Println("croftql is read-only: only SELECT, WITH, DESCRIBE, SHOW and EXPLAIN are allowed")
		return
	}

	if err := sh.runQuery(strings.TrimSuffix(in, ";")); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

// readOnlyStatement reports whether a statement is query-only.
func readOnlyStatement(stmt string) bool {
	first := strings.ToUpper(strings.Fields(stmt)[0])
	switch first {
	case "SELECT", "WITH", "DESCRIBE", "SHOW", "EXPLAIN":
		return true
	default:
		return false
	}
}

// =============================================================================
// Meta Commands
// =============================================================================

func (sh *shell) executeMeta(in string) {
	fields := strings.Fields(in)

	switch fields[0] {
	case `\help`, `\h`:
		fmt.Println(`Commands:
  \tables          list tables
  \schema <table>  describe a table
  \recent [n]      newest sensor readings (default 10)
  \stats [n]       newest daily stat rows (default 20)
  \help            this help
  exit             leave`)

	case `\tables`:
		if err := sh.runQuery("SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name"); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case `\schema`:
		if len(fields) < 2 {
			fmt.Println(`usage: \schema <table>`)
			return
		}
		if !identifier(fields[1]) {
			fmt.Printf("invalid table name %q\n", fields[1])
			return
		}
		if err := sh.runQuery("DESCRIBE " + fields[1]); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case `\recent`:
		n := argCount(fields, 10)
		if err := sh.runQuery(fmt.Sprintf(
			"SELECT id, timestamp, field_id, sensor_type, reading_value, unit FROM sensor_readings ORDER BY timestamp DESC LIMIT %d", n)); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case `\stats`:
		n := argCount(fields, 20)
		if err := sh.runQuery(fmt.Sprintf(
			"SELECT date, field_id, sensor_type, avg_value, min_value, max_value, count_readings FROM daily_stats ORDER BY date DESC LIMIT %d", n)); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	default:
		fmt.Printf("unknown command %s (try \\help)\n", fields[0])
	}
}

func argCount(fields []string, def int) int {
	if len(fields) < 2 {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(fields[1], "%d", &n); err != nil || n < 1 {
		return def
	}
	return n
}

// identifier reports whether s is a plain SQL identifier.
func identifier(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return len(s) > 0
}

// =============================================================================
// Query Execution
// =============================================================================

// runQuery executes one statement and prints an aligned result table.
func (sh *shell) runQuery(query string) error {
	rows, err := sh.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}

		cells := make([]string, len(cols))
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.Flush()
	fmt.Printf("(%d rows)\n", count)
	return nil
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// =============================================================================
// Completion
// =============================================================================

var sqlKeywords = []prompt.Suggest{
	{Text: "SELECT", Description: "query rows"},
	{Text: "FROM", Description: ""},
	{Text: "WHERE", Description: ""},
	{Text: "GROUP BY", Description: ""},
	{Text: "ORDER BY", Description: ""},
	{Text: "LIMIT", Description: ""},
	{Text: "COUNT(*)", Description: ""},
	{Text: "AVG(reading_value)", Description: ""},
	{Text: "MIN(reading_value)", Description: ""},
	{Text: "MAX(reading_value)", Description: ""},
	{Text: "sensor_readings", Description: "raw readings table"},
	{Text: "daily_stats", Description: "daily rollup table"},
	{Text: "timestamp", Description: "reading time"},
	{Text: "field_id", Description: ""},
	{Text: "sensor_type", Description: ""},
	{Text: "reading_value", Description: ""},
	{Text: "unit", Description: ""},
	{Text: "date", Description: "rollup day"},
	{Text: "count_readings", Description: ""},
	{Text: `\tables`, Description: "list tables"},
	{Text: `\schema`, Description: "describe a table"},
	{Text: `\recent`, Description: "newest readings"},
	{Text: `\stats`, Description: "newest daily stats"},
	{Text: `\help`, Description: "help"},
	{Text: "exit", Description: "leave"},
}

func (sh *shell) complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if word == "" {
		return nil
	}

	matches := prompt.FilterHasPrefix(sqlKeywords, word, true)
	sort.Slice(matches, func(i, j int) bool { return matches[i].Text < matches[j].Text })
	return matches
}
