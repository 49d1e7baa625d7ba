package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"mvdan.cc/sh/v3/interp"
)

// commandEnv is what one snapshot command runs with
type commandEnv struct {
	ctx    context.Context
	shell  *snapshotShell
	dir    string
	name   string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type snapshotCommand func(env *commandEnv, args []string) error

// snapshotCommands are the utilities available in the virtual runtime.
// All of them only read.
var snapshotCommands = map[string]snapshotCommand{
	"cat":  runCat,
	"find": runFind,
	"grep": runGrep,
	"head": runHead,
	"ls":   runLs,
	"sort": runSort,
	"tail": runTail,
	"uniq": runUniq,
	"wc":   runWc,
}

func commandNames() []string {
	names := make([]string, 0, len(snapshotCommands))
	for name := range snapshotCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var errIsDirectory = errors.New("is a directory")

func exitStatus(code int) error {
	if code == 0 {
		return nil
	}
	return interp.NewExitStatus(uint8(code))
}

func (e *commandEnv) errorf(format string, args ...interface{}) {
	fmt.Fprintf(e.stderr, "%s: %s\n", e.name, fmt.Sprintf(format, args...))
}

func (e *commandEnv) flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet(e.name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	return flags
}

func (e *commandEnv) parse(flags *pflag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		e.errorf("%v", err)
		return interp.NewExitStatus(2)
	}
	return nil
}

// readFile reads name relative to the working directory; "-" is stdin
func (e *commandEnv) readFile(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(e.stdin)
	}
	return e.readPath(e.shell.resolve(e.dir, name))
}

func (e *commandEnv) readPath(real string) ([]byte, error) {
	info, err := os.Stat(real)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errIsDirectory
	}
	return os.ReadFile(real)
}

func describe(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "No such file or directory"
	case errors.Is(err, fs.ErrPermission):
		return "Permission denied"
	case errors.Is(err, errIsDirectory):
		return "Is a directory"
	default:
		return err.Error()
	}
}

// walk visits real and everything below it in lexical order. display is the
// name real was given as; children are shown relative to it.
func (e *commandEnv) walk(real, display string, fn func(real, shown string, d fs.DirEntry, depth int) error) error {
	return filepath.WalkDir(real, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := e.ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(real, p)
		if err != nil {
			return err
		}
		depth := 0
		if rel != "." {
			depth = strings.Count(rel, string(filepath.Separator)) + 1
		}
		return fn(p, joinDisplay(display, rel), d, depth)
	})
}

func joinDisplay(base, rel string) string {
	if rel == "." {
		return base
	}
	rel = filepath.ToSlash(rel)
	if base == "" {
		return rel
	}
	return strings.TrimSuffix(base, "/") + "/" + rel
}

func splitLines(data []byte) []string {
	text := string(data)
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func inputs(args []string) []string {
	if len(args) == 0 {
		return []string{"-"}
	}
	return args
}

func runCat(e *commandEnv, args []string) error {
	flags := e.flags()
	number := flags.BoolP("number", "n", false, "number output lines")
	if err := e.parse(flags, args); err != nil {
		return err
	}

	status, line := 0, 0
	for _, name := range inputs(flags.Args()) {
		data, err := e.readFile(name)
		if err != nil {
			e.errorf("%s: %s", name, describe(err))
			status = 1
			continue
		}
		if !*number {
			_, _ = e.stdout.Write(data)
			continue
		}
		for _, text := range splitLines(data) {
			line++
			fmt.Fprintf(e.stdout, "%6d\t%s\n", line, text)
		}
	}
	return exitStatus(status)
}

var countShorthand = regexp.MustCompile(`^-[0-9]+$`)

func runHead(e *commandEnv, args []string) error {
	return headTail(e, args, false)
}

func runTail(e *commandEnv, args []string) error {
	return headTail(e, args, true)
}

func headTail(e *commandEnv, args []string, tail bool) error {
	// -5 is short for -n 5
	expanded := make([]string, 0, len(args))
	for _, arg := range args {
		if countShorthand.MatchString(arg) {
			expanded = append(expanded, "-n", arg[1:])
			continue
		}
		expanded = append(expanded, arg)
	}

	flags := e.flags()
	lines := flags.StringP("lines", "n", "10", "number of lines")
	quiet := flags.BoolP("quiet", "q", false, "never print file headers")
	if err := e.parse(flags, expanded); err != nil {
		return err
	}

	fromStart := strings.HasPrefix(*lines, "+")
	n, err := strconv.Atoi(strings.TrimPrefix(*lines, "+"))
	if err != nil || n < 0 {
		e.errorf("invalid number of lines: %q", *lines)
		return interp.NewExitStatus(1)
	}

	files := inputs(flags.Args())
	headers := len(files) > 1 && !*quiet
	status := 0
	for i, name := range files {
		data, err := e.readFile(name)
		if err != nil {
			e.errorf("%s: %s", name, describe(err))
			status = 1
			continue
		}
		if headers {
			if i > 0 {
				fmt.Fprintln(e.stdout)
			}
			fmt.Fprintf(e.stdout, "==> %s <==\n", name)
		}

		all := splitLines(data)
		var out []string
		switch {
		case !tail:
			out = all[:min(n, len(all))]
		case fromStart:
			out = all[min(max(n-1, 0), len(all)):]
		default:
			out = all[max(len(all)-n, 0):]
		}
		for _, text := range out {
			fmt.Fprintln(e.stdout, text)
		}
	}
	return exitStatus(status)
}

type wcCounts struct {
	lines, words, bytes, chars int
}

func runWc(e *commandEnv, args []string) error {
	flags := e.flags()
	lines := flags.BoolP("lines", "l", false, "print line counts")
	words := flags.BoolP("words", "w", false, "print word counts")
	bytes := flags.BoolP("bytes", "c", false, "print byte counts")
	chars := flags.BoolP("chars", "m", false, "print character counts")
	if err := e.parse(flags, args); err != nil {
		return err
	}
	if !*lines && !*words && !*bytes && !*chars {
		*lines, *words, *bytes = true, true, true
	}

	format := func(c wcCounts, name string) string {
		var fields []string
		if *lines {
			fields = append(fields, strconv.Itoa(c.lines))
		}
		if *words {
			fields = append(fields, strconv.Itoa(c.words))
		}
		if *chars {
			fields = append(fields, strconv.Itoa(c.chars))
		}
		if *bytes {
			fields = append(fields, strconv.Itoa(c.bytes))
		}
		if name != "" {
			fields = append(fields, name)
		}
		return strings.Join(fields, " ")
	}

	files := flags.Args()
	if len(files) == 0 {
		data, err := io.ReadAll(e.stdin)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, format(count(data), ""))
		return nil
	}

	var total wcCounts
	status := 0
	for _, name := range files {
		data, err := e.readFile(name)
		if err != nil {
			e.errorf("%s: %s", name, describe(err))
			status = 1
			continue
		}
		c := count(data)
		total.lines += c.lines
		total.words += c.words
		total.bytes += c.bytes
		total.chars += c.chars
		fmt.Fprintln(e.stdout, format(c, name))
	}
	if len(files) > 1 {
		fmt.Fprintln(e.stdout, format(total, "total"))
	}
	return exitStatus(status)
}

func count(data []byte) wcCounts {
	text := string(data)
	return wcCounts{
		lines: strings.Count(text, "\n"),
		words: len(strings.Fields(text)),
		bytes: len(data),
		chars: len([]rune(text)),
	}
}

type grepOptions struct {
	re           *regexp.Regexp
	invert       bool
	lineNumber   bool
	count        bool
	listFiles    bool
	onlyMatching bool
	quiet        bool
	showName     bool
	before       int
	after        int
	maxCount     int
}

type grepInput struct {
	display string
	// real is empty for standard input
	real string
}

func runGrep(e *commandEnv, args []string) error {
	flags := e.flags()
	ignoreCase := flags.BoolP("ignore-case", "i", false, "ignore case distinctions")
	lineNumber := flags.BoolP("line-number", "n", false, "print line numbers")
	countOnly := flags.BoolP("count", "c", false, "print only a count of matching lines")
	listFiles := flags.BoolP("files-with-matches", "l", false, "print only names of files with matches")
	invert := flags.BoolP("invert-match", "v", false, "select non-matching lines")
	recursive := flags.BoolP("recursive", "r", false, "read all files under each directory")
	recursiveR := flags.BoolP("dereference-recursive", "R", false, "same as -r")
	fixed := flags.BoolP("fixed-strings", "F", false, "patterns are strings")
	extended := flags.BoolP("extended-regexp", "E", false, "patterns are extended regular expressions")
	word := flags.BoolP("word-regexp", "w", false, "match only whole words")
	noName := flags.BoolP("no-filename", "h", false, "suppress file names")
	withName := flags.BoolP("with-filename", "H", false, "print file names")
	onlyMatching := flags.BoolP("only-matching", "o", false, "print only the matched parts")
	quiet := flags.BoolP("quiet", "q", false, "suppress all output")
	patterns := flags.StringArrayP("regexp", "e", nil, "pattern to match")
	after := flags.IntP("after-context", "A", 0, "lines of trailing context")
	before := flags.IntP("before-context", "B", 0, "lines of leading context")
	around := flags.IntP("context", "C", 0, "lines of context")
	maxCount := flags.IntP("max-count", "m", 0, "stop after this many matches per file")
	include := flags.StringArray("include", nil, "search only files whose base name matches")
	if err := e.parse(flags, args); err != nil {
		return err
	}

	rest := flags.Args()
	exprs := *patterns
	if len(exprs) == 0 {
		if len(rest) == 0 {
			e.errorf("usage: grep [OPTION]... PATTERN [FILE]...")
			return interp.NewExitStatus(2)
		}
		exprs, rest = rest[:1], rest[1:]
	}

	re, err := compileGrepPattern(exprs, *fixed, *extended, *word, *ignoreCase)
	if err != nil {
		e.errorf("invalid pattern: %v", err)
		return interp.NewExitStatus(2)
	}

	rec := *recursive || *recursiveR
	opts := grepOptions{
		re:           re,
		invert:       *invert,
		lineNumber:   *lineNumber,
		count:        *countOnly,
		listFiles:    *listFiles,
		onlyMatching: *onlyMatching,
		quiet:        *quiet,
		showName:     (len(rest) > 1 || rec) && !*noName || *withName,
		before:       max(*before, *around),
		after:        max(*after, *around),
		maxCount:     *maxCount,
	}

	var targets []grepInput
	failed := false
	switch {
	case len(rest) == 0 && rec:
		targets, failed = e.grepTargets([]string{"."}, true, *include, true)
	case len(rest) == 0:
		targets = []grepInput{{display: "(standard input)"}}
	default:
		targets, failed = e.grepTargets(rest, rec, *include, false)
	}

	matched := false
	for _, in := range targets {
		if err := e.ctx.Err(); err != nil {
			return err
		}

		var data []byte
		var err error
		if in.real == "" {
			data, err = io.ReadAll(e.stdin)
		} else {
			data, err = e.readPath(in.real)
		}
		if err != nil {
			e.errorf("%s: %s", in.display, describe(err))
			failed = true
			continue
		}

		if e.grepLines(opts, in.display, splitLines(data)) {
			matched = true
			if opts.quiet {
				return nil
			}
		}
	}

	switch {
	case matched:
		return nil
	case failed:
		return interp.NewExitStatus(2)
	default:
		return interp.NewExitStatus(1)
	}
}

// grepTargets expands the operands into files. A defaulted "." is shown
// without its "./" prefix.
func (e *commandEnv) grepTargets(names []string, rec bool, include []string, implicit bool) ([]grepInput, bool) {
	var targets []grepInput
	failed := false

	for _, name := range names {
		if name == "-" {
			targets = append(targets, grepInput{display: "(standard input)"})
			continue
		}

		real := e.shell.resolve(e.dir, name)
		info, err := os.Stat(real)
		if err != nil {
			e.errorf("%s: %s", name, describe(err))
			failed = true
			continue
		}
		if !info.IsDir() {
			targets = append(targets, grepInput{display: name, real: real})
			continue
		}
		if !rec {
			e.errorf("%s: %s", name, describe(errIsDirectory))
			failed = true
			continue
		}

		display := name
		if implicit {
			display = ""
		}
		err = e.walk(real, display, func(p, shown string, d fs.DirEntry, _ int) error {
			if d.IsDir() || !includes(include, d.Name()) {
				return nil
			}
			targets = append(targets, grepInput{display: shown, real: p})
			return nil
		})
		if err != nil {
			e.errorf("%s: %v", name, err)
			failed = true
		}
	}
	return targets, failed
}

func includes(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// grepLines prints the selected lines of one input and reports whether any matched
func (e *commandEnv) grepLines(opts grepOptions, display string, lines []string) bool {
	var hits []int
	for i, text := range lines {
		if opts.re.MatchString(text) != opts.invert {
			hits = append(hits, i)
			if opts.maxCount > 0 && len(hits) == opts.maxCount {
				break
			}
		}
	}

	prefix := func(i int, sep string) string {
		var b strings.Builder
		if opts.showName {
			b.WriteString(display + sep)
		}
		if opts.lineNumber {
			b.WriteString(strconv.Itoa(i+1) + sep)
		}
		return b.String()
	}

	switch {
	case opts.quiet:
	case opts.listFiles:
		if len(hits) > 0 {
			fmt.Fprintln(e.stdout, display)
		}
	case opts.count:
		if opts.showName {
			fmt.Fprintf(e.stdout, "%s:%d\n", display, len(hits))
		} else {
			fmt.Fprintln(e.stdout, len(hits))
		}
	case opts.onlyMatching:
		for _, i := range hits {
			for _, match := range opts.re.FindAllString(lines[i], -1) {
				fmt.Fprintln(e.stdout, prefix(i, ":")+match)
			}
		}
	default:
		isHit := make(map[int]bool, len(hits))
		for _, i := range hits {
			isHit[i] = true
		}

		last := -1
		for _, h := range hits {
			start := max(h-opts.before, last+1)
			if last >= 0 && start > last+1 && (opts.before > 0 || opts.after > 0) {
				fmt.Fprintln(e.stdout, "--")
			}
			for i := start; i < h; i++ {
				fmt.Fprintln(e.stdout, prefix(i, "-")+lines[i])
			}
			fmt.Fprintln(e.stdout, prefix(h, ":")+lines[h])
			last = h

			for i := h + 1; i <= min(h+opts.after, len(lines)-1) && !isHit[i]; i++ {
				fmt.Fprintln(e.stdout, prefix(i, "-")+lines[i])
				last = i
			}
		}
	}

	return len(hits) > 0
}

func compileGrepPattern(patterns []string, fixed, extended, word, ignoreCase bool) (*regexp.Regexp, error) {
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		switch {
		case fixed:
			parts[i] = regexp.QuoteMeta(p)
		case extended:
			parts[i] = p
		default:
			parts[i] = basicToExtended(p)
		}
	}

	expr := "(?:" + strings.Join(parts, ")|(?:") + ")"
	if word {
		expr = `\b` + expr + `\b`
	}
	if ignoreCase {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// basicToExtended rewrites a POSIX basic regular expression for the regexp
// package: \| \( \) \{ \} \? \+ become operators and the bare characters
// become literals.
func basicToExtended(p string) string {
	const swapped = "|(){}?+"

	var b strings.Builder
	inBracket := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case inBracket:
			b.WriteByte(c)
			if c == ']' {
				inBracket = false
			}
		case c == '[':
			b.WriteByte(c)
			inBracket = true
			if i+1 < len(p) && p[i+1] == '^' {
				i++
				b.WriteByte('^')
			}
			if i+1 < len(p) && p[i+1] == ']' {
				i++
				b.WriteByte(']')
			}
		case c == '\\' && i+1 < len(p):
			i++
			switch next := p[i]; {
			case strings.IndexByte(swapped, next) >= 0:
				b.WriteByte(next)
			case next == '<' || next == '>':
				b.WriteString(`\b`)
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
		case strings.IndexByte(swapped, c) >= 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func runLs(e *commandEnv, args []string) error {
	flags := e.flags()
	long := flags.BoolP("long", "l", false, "use a long listing format")
	recursive := flags.BoolP("recursive", "R", false, "list subdirectories recursively")
	flags.BoolP("all", "a", false, "accepted for compatibility")
	flags.BoolP("almost-all", "A", false, "accepted for compatibility")
	flags.BoolP("one", "1", false, "accepted for compatibility")
	flags.BoolP("human-readable", "h", false, "accepted for compatibility")
	if err := e.parse(flags, args); err != nil {
		return err
	}

	names := flags.Args()
	if len(names) == 0 {
		names = []string{"."}
	}

	entry := func(info fs.FileInfo, name string) {
		if *long {
			fmt.Fprintf(e.stdout, "%s %8d %s\n", info.Mode(), info.Size(), name)
			return
		}
		fmt.Fprintln(e.stdout, name)
	}

	status := 0
	var dirs []string
	for _, name := range names {
		info, err := os.Stat(e.shell.resolve(e.dir, name))
		if err != nil {
			e.errorf("cannot access '%s': %s", name, describe(err))
			status = 2
			continue
		}
		if info.IsDir() {
			dirs = append(dirs, name)
			continue
		}
		entry(info, name)
	}

	headers := len(names) > 1 || *recursive
	printed := len(names) > len(dirs)
	for _, name := range dirs {
		real := e.shell.resolve(e.dir, name)
		listDir := func(real, shown string) error {
			entries, err := os.ReadDir(real)
			if err != nil {
				return err
			}
			if headers {
				if printed {
					fmt.Fprintln(e.stdout)
				}
				fmt.Fprintf(e.stdout, "%s:\n", shown)
			}
			printed = true
			for _, child := range entries {
				info, err := child.Info()
				if err != nil {
					return err
				}
				entry(info, child.Name())
			}
			return nil
		}

		var err error
		if *recursive {
			err = e.walk(real, name, func(p, shown string, d fs.DirEntry, _ int) error {
				if !d.IsDir() {
					return nil
				}
				return listDir(p, shown)
			})
		} else {
			err = listDir(real, name)
		}
		if err != nil {
			e.errorf("%s: %s", name, describe(err))
			status = 2
		}
	}
	return exitStatus(status)
}

type findPredicate func(shown string, d fs.DirEntry) bool

func runFind(e *commandEnv, args []string) error {
	var roots []string
	i := 0
	for ; i < len(args) && !strings.HasPrefix(args[i], "-"); i++ {
		roots = append(roots, args[i])
	}
	if len(roots) == 0 {
		roots = []string{"."}
	}

	var preds []findPredicate
	maxDepth, minDepth := -1, 0
	for ; i < len(args); i++ {
		option := args[i]
		if option == "-print" {
			continue
		}
		if i+1 >= len(args) {
			e.errorf("missing argument to `%s'", option)
			return interp.NewExitStatus(1)
		}
		value := args[i+1]
		i++

		switch option {
		case "-name", "-iname":
			fold := option == "-iname"
			preds = append(preds, func(shown string, _ fs.DirEntry) bool {
				base := path.Base(shown)
				if fold {
					ok, _ := path.Match(strings.ToLower(value), strings.ToLower(base))
					return ok
				}
				ok, _ := path.Match(value, base)
				return ok
			})
		case "-path":
			re, err := regexp.Compile("^" + globToRegexp(value) + "$")
			if err != nil {
				e.errorf("invalid pattern %q", value)
				return interp.NewExitStatus(1)
			}
			preds = append(preds, func(shown string, _ fs.DirEntry) bool { return re.MatchString(shown) })
		case "-type":
			if value != "f" && value != "d" {
				e.errorf("unknown argument to -type: %s", value)
				return interp.NewExitStatus(1)
			}
			wantDir := value == "d"
			preds = append(preds, func(_ string, d fs.DirEntry) bool { return d.IsDir() == wantDir })
		case "-maxdepth", "-mindepth":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				e.errorf("invalid argument to %s: %s", option, value)
				return interp.NewExitStatus(1)
			}
			if option == "-maxdepth" {
				maxDepth = n
			} else {
				minDepth = n
			}
		default:
			e.errorf("unknown predicate `%s'", option)
			return interp.NewExitStatus(1)
		}
	}

	status := 0
	for _, root := range roots {
		real := e.shell.resolve(e.dir, root)
		if _, err := os.Stat(real); err != nil {
			e.errorf("'%s': %s", root, describe(err))
			status = 1
			continue
		}

		err := e.walk(real, root, func(_, shown string, d fs.DirEntry, depth int) error {
			if maxDepth >= 0 && depth > maxDepth {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if depth < minDepth {
				return nil
			}
			for _, pred := range preds {
				if !pred(shown, d) {
					return nil
				}
			}
			fmt.Fprintln(e.stdout, shown)
			return nil
		})
		if err != nil {
			if ctxErr := e.ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			e.errorf("'%s': %v", root, err)
			status = 1
		}
	}
	return exitStatus(status)
}

// globToRegexp translates a find -path pattern, where * also matches "/"
func globToRegexp(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

var leadingNumber = regexp.MustCompile(`^\s*-?[0-9]+(\.[0-9]+)?`)

func numericKey(s string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(leadingNumber.FindString(s)), 64)
	if err != nil {
		return 0
	}
	return n
}

func runSort(e *commandEnv, args []string) error {
	flags := e.flags()
	reverse := flags.BoolP("reverse", "r", false, "reverse the result")
	numeric := flags.BoolP("numeric-sort", "n", false, "compare by leading number")
	unique := flags.BoolP("unique", "u", false, "drop repeated lines")
	fold := flags.BoolP("ignore-case", "f", false, "fold lower case to upper case")
	if err := e.parse(flags, args); err != nil {
		return err
	}

	var lines []string
	status := 0
	for _, name := range inputs(flags.Args()) {
		data, err := e.readFile(name)
		if err != nil {
			e.errorf("%s: %s", name, describe(err))
			status = 2
			continue
		}
		lines = append(lines, splitLines(data)...)
	}

	key := func(s string) string {
		if *fold {
			return strings.ToUpper(s)
		}
		return s
	}
	compare := func(a, b string) int {
		if *numeric {
			na, nb := numericKey(a), numericKey(b)
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
		}
		return strings.Compare(key(a), key(b))
	}

	sort.SliceStable(lines, func(i, j int) bool {
		if *reverse {
			return compare(lines[i], lines[j]) > 0
		}
		return compare(lines[i], lines[j]) < 0
	})

	for i, text := range lines {
		if *unique && i > 0 && compare(lines[i-1], text) == 0 {
			continue
		}
		fmt.Fprintln(e.stdout, text)
	}
	return exitStatus(status)
}

func runUniq(e *commandEnv, args []string) error {
	flags := e.flags()
	counts := flags.BoolP("count", "c", false, "prefix lines by the number of occurrences")
	repeated := flags.BoolP("repeated", "d", false, "only print duplicate lines")
	single := flags.BoolP("unique", "u", false, "only print unique lines")
	if err := e.parse(flags, args); err != nil {
		return err
	}

	name := "-"
	if rest := flags.Args(); len(rest) > 0 {
		name = rest[0]
	}
	data, err := e.readFile(name)
	if err != nil {
		e.errorf("%s: %s", name, describe(err))
		return interp.NewExitStatus(1)
	}

	lines := splitLines(data)
	for i := 0; i < len(lines); {
		j := i + 1
		for j < len(lines) && lines[j] == lines[i] {
			j++
		}
		n := j - i
		if (!*repeated || n > 1) && (!*single || n == 1) {
			if *counts {
				fmt.Fprintf(e.stdout, "%7d %s\n", n, lines[i])
			} else {
				fmt.Fprintln(e.stdout, lines[i])
			}
		}
		i = j
	}
	return nil
}
