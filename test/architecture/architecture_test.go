package architecture_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/davidleathers/secops-incident-engine"

// TestDomainNotDependOnInfrastructure keeps the domain packages free of storage, transport
// and logging concerns.
func TestDomainNotDependOnInfrastructure(t *testing.T) {
	forbiddenImports := []string{
		"database/sql",
		"net/http",
		"github.com/lib/pq",
		"github.com/jackc/pgx",
		"github.com/redis/go-redis",
		"go.uber.org/zap",
		"github.com/prometheus",
		modulePath + "/internal/infrastructure",
		modulePath + "/internal/service",
		modulePath + "/internal/api",
		modulePath + "/internal/metrics",
	}

	for _, file := range sourceFiles(t, "../../internal/domain") {
		for _, imp := range getFileImports(t, file) {
			for _, forbidden := range forbiddenImports {
				if strings.HasPrefix(imp, forbidden) {
					t.Errorf("Domain file %s imports %s", file, imp)
				}
			}
		}
	}
}

// TestServicesStayBehindInterfaces ensures services reach persistence and transport only
// through the interfaces they declare.
func TestServicesStayBehindInterfaces(t *testing.T) {
	forbiddenImports := []string{
		"net/http",
		"github.com/jackc/pgx",
		"github.com/redis/go-redis",
		modulePath + "/internal/infrastructure/database",
		modulePath + "/internal/infrastructure/repository",
		modulePath + "/internal/infrastructure/cache",
		modulePath + "/internal/infrastructure/events",
		modulePath + "/internal/api",
	}

	for _, file := range sourceFiles(t, "../../internal/service") {
		for _, imp := range getFileImports(t, file) {
			for _, forbidden := range forbiddenImports {
				if strings.HasPrefix(imp, forbidden) {
					t.Errorf("Service file %s imports %s", file, imp)
				}
			}
		}
	}
}

// TestPermissionTablesStaySeparate checks the org table never names platform roles and the
// platform table never names org roles.
func TestPermissionTablesStaySeparate(t *testing.T) {
	tests := []struct {
		file      string
		forbidden string
	}{
		{"../../internal/domain/permission/org.go", "Platform"},
		{"../../internal/domain/permission/platform.go", "Org"},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.file), func(t *testing.T) {
			node := parseFile(t, tt.file, 0)
			ast.Inspect(node, func(n ast.Node) bool {
				if sel, ok := n.(*ast.SelectorExpr); ok {
					if pkg, ok := sel.X.(*ast.Ident); ok && pkg.Name == "role" {
						assert.False(t, strings.HasPrefix(sel.Sel.Name, tt.forbidden),
							"%s references role.%s", tt.file, sel.Sel.Name)
					}
				}
				return true
			})
		})
	}
}

// TestServiceMaxDependencies caps the collaborators a service struct carries.
func TestServiceMaxDependencies(t *testing.T) {
	const maxDeps = 6

	for _, file := range sourceFiles(t, "../../internal/service") {
		node := parseFile(t, file, 0)
		ast.Inspect(node, func(n ast.Node) bool {
			typeSpec, ok := n.(*ast.TypeSpec)
			if !ok {
				return true
			}
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok {
				return true
			}
			deps := 0
			for _, field := range structType.Fields.List {
				if isCollaborator(getTypeString(field.Type)) {
					deps += max(len(field.Names), 1)
				}
			}
			if deps > maxDeps {
				t.Errorf("%s has %d dependencies (max allowed: %d) in %s", typeSpec.Name.Name, deps, maxDeps, file)
			}
			return true
		})
	}
}

// Helper functions

func isCollaborator(typeStr string) bool {
	for _, suffix := range []string{"Gateway", "Writer", "Repository", "Store", "Emitter", "Machine", "Sink"} {
		if strings.HasSuffix(typeStr, suffix) {
			return true
		}
	}
	return false
}

func sourceFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, files, "no sources under %s", root)
	return files
}

func parseFile(t *testing.T, filename string, mode parser.Mode) *ast.File {
	t.Helper()
	node, err := parser.ParseFile(token.NewFileSet(), filename, nil, mode)
	require.NoError(t, err, "failed to parse %s", filename)
	return node
}

func getFileImports(t *testing.T, filename string) []string {
	node := parseFile(t, filename, parser.ImportsOnly)
	var imports []string
	for _, imp := range node.Imports {
		if imp.Path != nil {
			imports = append(imports, strings.Trim(imp.Path.Value, `"`))
		}
	}
	return imports
}

func getTypeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return getTypeString(t.X)
	case *ast.SelectorExpr:
		return getTypeString(t.X) + "." + t.Sel.Name
	default:
		return ""
	}
}
