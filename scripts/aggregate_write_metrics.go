// Command aggregate_write_metrics reports where receipt and inventory state is
// written: through the aggregates, which own the transaction and status guard,
// or straight through a repo.
//
//	go run ./scripts [root]
package main

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// scanDirs are the layers that coordinate writes. Repos and aggregates
// themselves are not scanned.
var scanDirs = []string{
	filepath.Join("internal", "services"),
	filepath.Join("internal", "modules", "receipts", "pipeline"),
	filepath.Join("internal", "modules", "receipts", "reconcile"),
	filepath.Join("internal", "modules", "catalog"),
	filepath.Join("internal", "jobs", "pipeline", "receipt_process"),
	filepath.Join("internal", "jobs", "pipeline", "catalog_embed"),
}

type repoField struct {
	Name     string `json:"name"`
	RepoType string `json:"repo_type"`
	Domain   string `json:"domain"`
	Guarded  bool   `json:"guarded"`
}

type methodStats struct {
	Package                   string   `json:"package"`
	StructName                string   `json:"struct_name"`
	Method                    string   `json:"method"`
	File                      string   `json:"file"`
	Line                      int      `json:"line"`
	GuardedRepoWriteCalls     int      `json:"guarded_repo_write_calls"`
	GuardedRepoWritesObserved []string `json:"guarded_repo_writes_observed"`
	AggregateWriteCalls       int      `json:"aggregate_write_calls"`
	AggregateWritesObserved   []string `json:"aggregate_writes_observed"`
}

type metricsReport struct {
	GuardedRepoWriteCallsites       int           `json:"guarded_repo_write_callsites"`
	AggregateWriteCallsites         int           `json:"aggregate_write_callsites"`
	MethodsWriting2PlusGuardedRepos int           `json:"methods_writing_2plus_guarded_repos"`
	MethodsWithGuardedRepoWrites    []methodStats `json:"methods_with_guarded_repo_writes"`
	MethodsWithAggregateWrites      []methodStats `json:"methods_with_aggregate_writes"`
	GuardedRepoFieldInventory       []repoField   `json:"guarded_repo_field_inventory"`
	Methods                         []methodStats `json:"methods"`
}

type structFields struct {
	RepoFields      map[string]repoField
	AggregateFields map[string]string
}

// repoWriteMethods are the mutating methods of the repos under internal/data/repos.
var repoWriteMethods = map[string]bool{
	"Create":                   true,
	"CreateItems":              true,
	"UpdateFields":             true,
	"UpdateFieldsIfStatus":     true,
	"UpdateFieldsUnlessStatus": true,
	"UpdateEmbedding":          true,
	"IncrementQuantity":        true,
	"ClaimNextRunnable":        true,
	"Heartbeat":                true,
}

var aggregateWriteMethods = map[string]bool{
	"BeginProcessing":   true,
	"RecordExtraction":  true,
	"Propose":           true,
	"MarkFailed":        true,
	"ResetForReprocess": true,
	"ConfirmReceipt":    true,
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	report, err := analyze(root, scanDirs)
	if err != nil {
		exitf("%v", err)
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitf("marshal report: %v", err)
	}
	fmt.Println(string(out))
}

func analyze(root string, dirs []string) (metricsReport, error) {
	fset := token.NewFileSet()
	var methods []methodStats
	fieldsByStruct := map[string]structFields{}

	type parsed struct {
		pkg  string
		path string
		file *ast.File
	}
	var files []parsed
	for _, dir := range dirs {
		full := filepath.Join(root, dir)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			continue
		}
		pkgs, err := parser.ParseDir(fset, full, func(fi os.FileInfo) bool {
			name := fi.Name()
			return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
		}, 0)
		if err != nil {
			return metricsReport{}, fmt.Errorf("parse %s: %w", dir, err)
		}
		for name, pkg := range pkgs {
			for path, f := range pkg.Files {
				files = append(files, parsed{pkg: name, path: path, file: f})
				collectStructFields(name, f, fieldsByStruct)
			}
		}
	}

	for _, f := range files {
		rel, err := filepath.Rel(root, f.path)
		if err != nil {
			rel = f.path
		}
		collectMethodStats(fset, f.pkg, f.file, rel, fieldsByStruct, &methods)
	}
	return buildReport(fieldsByStruct, methods), nil
}

func structKey(pkg, name string) string { return pkg + "." + name }

func collectStructFields(pkg string, file *ast.File, out map[string]structFields) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok || st.Fields == nil {
				continue
			}
			sf := structFields{
				RepoFields:      map[string]repoField{},
				AggregateFields: map[string]string{},
			}
			for _, field := range st.Fields.List {
				if len(field.Names) == 0 {
					continue
				}
				sel, ok := field.Type.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				pkgIdent, ok := sel.X.(*ast.Ident)
				if !ok {
					continue
				}
				typeName := sel.Sel.Name
				for _, name := range field.Names {
					switch pkgIdent.Name {
					case "repos":
						if !strings.HasSuffix(typeName, "Repo") {
							continue
						}
						domain, guarded := domainForRepoType(typeName)
						sf.RepoFields[name.Name] = repoField{
							Name:     name.Name,
							RepoType: typeName,
							Domain:   domain,
							Guarded:  guarded,
						}
					case "domainagg":
						if strings.HasSuffix(typeName, "Aggregate") {
							sf.AggregateFields[name.Name] = typeName
						}
					}
				}
			}
			if len(sf.RepoFields) > 0 || len(sf.AggregateFields) > 0 {
				out[structKey(pkg, ts.Name.Name)] = sf
			}
		}
	}
}

func collectMethodStats(
	fset *token.FileSet,
	pkg string,
	file *ast.File,
	relFile string,
	fieldsByStruct map[string]structFields,
	out *[]methodStats,
) {
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || fd.Body == nil || len(fd.Recv.List) == 0 {
			continue
		}
		recvName, recvType := recvInfo(fd.Recv.List[0])
		if recvType == "" || recvName == "" {
			continue
		}
		sf, ok := fieldsByStruct[structKey(pkg, recvType)]
		if !ok {
			continue
		}

		repoCalls := 0
		repoWrites := map[string]bool{}
		aggCalls := 0
		aggWrites := map[string]bool{}

		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			fnSel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			rcvSel, ok := fnSel.X.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			baseIdent, ok := rcvSel.X.(*ast.Ident)
			if !ok || baseIdent.Name != recvName {
				return true
			}
			field := rcvSel.Sel.Name
			method := fnSel.Sel.Name

			if rf, ok := sf.RepoFields[field]; ok && rf.Guarded && repoWriteMethods[method] {
				repoCalls++
				repoWrites[rf.RepoType+"."+method] = true
				return true
			}
			if _, ok := sf.AggregateFields[field]; ok && aggregateWriteMethods[method] {
				aggCalls++
				aggWrites[method] = true
			}
			return true
		})

		*out = append(*out, methodStats{
			Package:                   pkg,
			StructName:                recvType,
			Method:                    fd.Name.Name,
			File:                      filepath.ToSlash(relFile),
			Line:                      fset.Position(fd.Pos()).Line,
			GuardedRepoWriteCalls:     repoCalls,
			GuardedRepoWritesObserved: sortedKeys(repoWrites),
			AggregateWriteCalls:       aggCalls,
			AggregateWritesObserved:   sortedKeys(aggWrites),
		})
	}
}

func buildReport(fieldsByStruct map[string]structFields, methods []methodStats) metricsReport {
	sort.Slice(methods, func(i, j int) bool {
		if methods[i].File == methods[j].File {
			return methods[i].Line < methods[j].Line
		}
		return methods[i].File < methods[j].File
	})

	report := metricsReport{Methods: methods}
	for _, m := range methods {
		if m.GuardedRepoWriteCalls > 0 {
			report.GuardedRepoWriteCallsites += m.GuardedRepoWriteCalls
			report.MethodsWithGuardedRepoWrites = append(report.MethodsWithGuardedRepoWrites, m)
		}
		if distinctRepos(m.GuardedRepoWritesObserved) >= 2 {
			report.MethodsWriting2PlusGuardedRepos++
		}
		if m.AggregateWriteCalls > 0 {
			report.AggregateWriteCallsites += m.AggregateWriteCalls
			report.MethodsWithAggregateWrites = append(report.MethodsWithAggregateWrites, m)
		}
	}

	keys := make([]string, 0)
	fields := map[string]repoField{}
	for structName, sf := range fieldsByStruct {
		for _, rf := range sf.RepoFields {
			if !rf.Guarded {
				continue
			}
			k := structName + "." + rf.Name
			keys = append(keys, k)
			fields[k] = rf
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		report.GuardedRepoFieldInventory = append(report.GuardedRepoFieldInventory, fields[k])
	}
	return report
}

func distinctRepos(writes []string) int {
	seen := map[string]bool{}
	for _, w := range writes {
		repo, _, _ := strings.Cut(w, ".")
		seen[repo] = true
	}
	return len(seen)
}

func recvInfo(field *ast.Field) (string, string) {
	if field == nil || len(field.Names) == 0 {
		return "", ""
	}
	recvName := field.Names[0].Name
	switch t := field.Type.(type) {
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return recvName, id.Name
		}
	case *ast.Ident:
		return recvName, t.Name
	}
	return "", ""
}

// domainForRepoType reports whether writes through the repo must go through
// an aggregate. Job bookkeeping is written by the job service directly.
func domainForRepoType(repoType string) (string, bool) {
	switch {
	case strings.HasPrefix(repoType, "Receipt"):
		return "Receipts", true
	case strings.HasPrefix(repoType, "Product"), strings.HasPrefix(repoType, "Transaction"):
		return "Inventory", true
	case strings.HasPrefix(repoType, "JobRun"):
		return "Jobs", false
	default:
		return "Other", false
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
