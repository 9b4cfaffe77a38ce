package specdoc

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var methods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

type Info struct {
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

type Server struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

// Operation is one method on one path, as listed in the exploration view.
type Operation struct {
	Method      string   `yaml:"-"`
	Path        string   `yaml:"-"`
	OperationID string   `yaml:"operationId"`
	Summary     string   `yaml:"summary"`
	Tags        []string `yaml:"tags"`
	Deprecated  bool     `yaml:"deprecated"`
}

// Document is the subset of an OpenAPI document the dashboard displays.
// JSON documents decode too since JSON is valid YAML.
type Document struct {
	OpenAPI string                          `yaml:"openapi"`
	Swagger string                          `yaml:"swagger"`
	Info    Info                            `yaml:"info"`
	Servers []Server                        `yaml:"servers"`
	Paths   map[string]map[string]yaml.Node `yaml:"paths"`
}

func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "[specdoc.Parse] decoding document")
	}
	if doc.OpenAPI == "" && doc.Swagger == "" {
		return nil, errors.New("[specdoc.Parse] not an OpenAPI document")
	}
	return &doc, nil
}

// Version returns the OpenAPI or Swagger version string.
func (d *Document) Version() string {
	if d.OpenAPI != "" {
		return d.OpenAPI
	}
	return d.Swagger
}

// Operations lists every operation sorted by path then method. Path-level
// keys such as parameters are skipped.
func (d *Document) Operations() []Operation {
	var ops []Operation
	for path, item := range d.Paths {
		for method, node := range item {
			if !methods[strings.ToLower(method)] {
				continue
			}
			var op Operation
			if err := node.Decode(&op); err != nil {
				op = Operation{}
			}
			op.Method, op.Path = strings.ToUpper(method), path
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}
