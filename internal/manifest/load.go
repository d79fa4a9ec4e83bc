package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/jasciiz/evox/internal/ctxlog"
	"github.com/jasciiz/evox/internal/tensor"
)

// rootSchema defines the top-level structure of a manifest file, expecting
// one or more 'operation' blocks.
type rootSchema struct {
	Operations []*hclOperation `hcl:"operation,block"`
}

// hclOperation represents a single 'operation' block for decoding purposes.
type hclOperation struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// operationBodySchema describes the body of an 'operation' block.
var operationBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "description"},
		{Name: "modes"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "input", LabelNames: []string{"name"}},
		{Type: "output", LabelNames: []string{"name"}},
	},
}

// argBodySchema describes the body of an 'input' or 'output' block.
var argBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "dtype"},
		{Name: "shape"},
		{Name: "default"},
	},
}

// Load recursively parses every .hcl file under path and returns the
// operation definitions they declare, in file order.
func Load(ctx context.Context, path string) ([]*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading operation manifests.", "path", path)

	filePaths, err := findByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to walk manifest path %q: %w", path, err)
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl manifest files found in path.", "path", path)
		return nil, nil
	}

	parser := hclparse.NewParser()
	var defs []*Definition
	seen := make(map[string]string)

	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", filePath, diags)
		}
		fileDefs, diags := parseFile(hclFile, filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode manifest %s: %w", filePath, diags)
		}
		for _, def := range fileDefs {
			if prev, dup := seen[def.Name]; dup {
				return nil, fmt.Errorf("operation %q declared in both %s and %s", def.Name, prev, filePath)
			}
			seen[def.Name] = filePath
			defs = append(defs, def)
		}
		logger.Debug("Loaded manifest file.", "file", filePath, "operations", len(fileDefs))
	}

	logger.Info("Operation manifests loaded.", "count", len(defs))
	return defs, nil
}

// parseFile decodes one manifest file into definitions.
func parseFile(hclFile *hcl.File, filePath string) ([]*Definition, hcl.Diagnostics) {
	var allDiags hcl.Diagnostics

	schema := &rootSchema{}
	diags := gohcl.DecodeBody(hclFile.Body, nil, schema)
	allDiags = append(allDiags, diags...)
	if diags.HasErrors() {
		return nil, allDiags
	}

	defs := make([]*Definition, 0, len(schema.Operations))
	for _, parsed := range schema.Operations {
		content, contentDiags := parsed.Body.Content(operationBodySchema)
		allDiags = append(allDiags, contentDiags...)
		if contentDiags.HasErrors() {
			continue
		}

		def := &Definition{Name: parsed.Name, SourceFile: filePath}

		if attr, exists := content.Attributes["description"]; exists {
			allDiags = append(allDiags, gohcl.DecodeExpression(attr.Expr, nil, &def.Description)...)
		}
		if attr, exists := content.Attributes["modes"]; exists {
			allDiags = append(allDiags, gohcl.DecodeExpression(attr.Expr, nil, &def.Modes)...)
		}

		for _, block := range content.Blocks {
			arg, argDiags := parseArg(block)
			allDiags = append(allDiags, argDiags...)
			if argDiags.HasErrors() {
				continue
			}
			switch block.Type {
			case "input":
				def.Inputs = append(def.Inputs, arg)
			case "output":
				def.Outputs = append(def.Outputs, arg)
			}
		}

		defs = append(defs, def)
	}

	if allDiags.HasErrors() {
		return nil, allDiags
	}
	return defs, allDiags
}

// parseArg decodes one 'input' or 'output' block into an ArgDef.
func parseArg(block *hcl.Block) (*ArgDef, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	content, contentDiags := block.Body.Content(argBodySchema)
	diags = append(diags, contentDiags...)
	if contentDiags.HasErrors() {
		return nil, diags
	}

	arg := &ArgDef{Name: block.Labels[0]}

	attr, exists := content.Attributes["dtype"]
	if !exists {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing dtype",
			Detail:   fmt.Sprintf("The %s %q must declare a dtype.", block.Type, arg.Name),
			Subject:  &block.DefRange,
		})
		return nil, diags
	}
	var dtypeName string
	diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &dtypeName)...)
	if diags.HasErrors() {
		return nil, diags
	}
	dtype, err := tensor.ParseDType(dtypeName)
	if err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid dtype",
			Detail:   err.Error(),
			Subject:  attr.Expr.Range().Ptr(),
		})
		return nil, diags
	}
	arg.DType = dtype

	if attr, exists := content.Attributes["shape"]; exists {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &arg.Shape)...)
	} else {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing shape",
			Detail:   fmt.Sprintf("The %s %q must declare a shape (use [] for scalars).", block.Type, arg.Name),
			Subject:  &block.DefRange,
		})
	}

	if attr, exists := content.Attributes["default"]; exists {
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if !valDiags.HasErrors() {
			arg.Default = val
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}
	return arg, diags
}

// findByExtension recursively collects files under rootPath with the given
// extension.
func findByExtension(rootPath, extension string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
