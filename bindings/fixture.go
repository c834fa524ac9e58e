package bindings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/FlashGalatine/xivdyetools-test-utils/service"
)

// ErrInvalidFixture is returned by Load for fixtures that parse but declare
// bindings the environment cannot apply.
var ErrInvalidFixture = errors.New("invalid bindings fixture")

// fixture is the YAML shape of a bindings declaration file.
type fixture struct {
	KVNamespaces      []kvDecl      `yaml:"kv_namespaces"`
	D1Databases       []dbDecl      `yaml:"d1_databases"`
	R2Buckets         []bucketDecl  `yaml:"r2_buckets"`
	Services          []serviceDecl `yaml:"services"`
	AnalyticsDatasets []datasetDecl `yaml:"analytics_datasets"`
}

type kvDecl struct {
	Binding string            `yaml:"binding"`
	Seed    map[string]string `yaml:"seed"`
}

func (d kvDecl) name() string { return d.Binding }

type dbDecl struct {
	Binding    string `yaml:"binding"`
	MaxHistory int    `yaml:"max_history"`
}

func (d dbDecl) name() string { return d.Binding }

type bucketDecl struct {
	Binding string            `yaml:"binding"`
	Seed    map[string]string `yaml:"seed"`
}

func (d bucketDecl) name() string { return d.Binding }

type serviceDecl struct {
	Binding string        `yaml:"binding"`
	Rules   []ruleDecl    `yaml:"rules"`
	Default *responseDecl `yaml:"default"`
}

func (d serviceDecl) name() string { return d.Binding }

type ruleDecl struct {
	Match   string            `yaml:"match"`
	Regexp  string            `yaml:"regexp"`
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
}

type responseDecl struct {
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
}

type datasetDecl struct {
	Binding       string `yaml:"binding"`
	MaxDataPoints int    `yaml:"max_data_points"`
}

func (d datasetDecl) name() string { return d.Binding }

// servicePlan is a validated service declaration ready to apply.
type servicePlan struct {
	name  string
	rules []compiledRule
	def   *service.Response
}

type compiledRule struct {
	match string
	re    *regexp.Regexp
	resp  *service.Response
}

// LoadFile applies the YAML fixture at path. See Load.
func (e *Env) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open bindings fixture: %w", err)
	}
	defer f.Close()

	return e.Load(f)
}

// Load applies a YAML fixture, creating every declared binding with its seed
// data, scripted rules, and limits. The fixture is validated in full before
// anything is created; on error the environment is left untouched. Declaring
// a binding name that already exists, in the environment or twice in the
// fixture, is an error.
func (e *Env) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read bindings fixture: %w", err)
	}

	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse bindings fixture: %w", err)
	}

	services, err := compileServices(f.Services)
	if err != nil {
		return err
	}
	if err := validateNames(&f); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkCollisions(&f); err != nil {
		return err
	}

	for _, decl := range f.KVNamespaces {
		e.kvLocked(decl.Binding, decl.Seed)
	}
	for _, decl := range f.D1Databases {
		e.dbLocked(decl.Binding, decl.MaxHistory)
	}
	for _, decl := range f.R2Buckets {
		e.bucketLocked(decl.Binding, bucketSeed(decl.Seed))
	}
	for _, plan := range services {
		client := e.serviceLocked(plan.name, plan.def)
		for _, rule := range plan.rules {
			if rule.re != nil {
				client.OnRegexp(rule.re).Return(rule.resp)
			} else {
				client.On(rule.match).Return(rule.resp)
			}
		}
	}
	for _, decl := range f.AnalyticsDatasets {
		e.datasetLocked(decl.Binding, decl.MaxDataPoints)
	}

	e.logger.Debug("bindings fixture applied",
		"kv", len(f.KVNamespaces),
		"db", len(f.D1Databases),
		"buckets", len(f.R2Buckets),
		"services", len(f.Services),
		"datasets", len(f.AnalyticsDatasets))
	return nil
}

// compileServices validates service declarations and compiles their rule
// patterns.
func compileServices(decls []serviceDecl) ([]servicePlan, error) {
	plans := make([]servicePlan, 0, len(decls))
	for _, decl := range decls {
		plan := servicePlan{name: decl.Binding}
		if decl.Default != nil {
			plan.def = declResponse(*decl.Default)
		}

		for i, rule := range decl.Rules {
			switch {
			case rule.Match != "" && rule.Regexp != "":
				return nil, fmt.Errorf("%w: service %q rule %d sets both match and regexp",
					ErrInvalidFixture, decl.Binding, i)
			case rule.Match == "" && rule.Regexp == "":
				return nil, fmt.Errorf("%w: service %q rule %d sets neither match nor regexp",
					ErrInvalidFixture, decl.Binding, i)
			}

			compiled := compiledRule{match: rule.Match, resp: declResponse(responseDecl{
				Status:  rule.Status,
				Headers: rule.Headers,
				Body:    rule.Body,
			})}
			if rule.Regexp != "" {
				re, err := regexp.Compile(rule.Regexp)
				if err != nil {
					return nil, fmt.Errorf("failed to compile rule pattern for service %q: %w",
						decl.Binding, err)
				}
				compiled.re = re
			}
			plan.rules = append(plan.rules, compiled)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// validateNames rejects empty and duplicated binding names within one
// fixture.
func validateNames(f *fixture) error {
	sections := []struct {
		kind  string
		names []string
	}{
		{"kv_namespaces", bindingNames(f.KVNamespaces)},
		{"d1_databases", bindingNames(f.D1Databases)},
		{"r2_buckets", bindingNames(f.R2Buckets)},
		{"services", bindingNames(f.Services)},
		{"analytics_datasets", bindingNames(f.AnalyticsDatasets)},
	}

	for _, section := range sections {
		seen := make(map[string]bool, len(section.names))
		for i, name := range section.names {
			if name == "" {
				return fmt.Errorf("%w: %s[%d] missing binding name", ErrInvalidFixture, section.kind, i)
			}
			if seen[name] {
				return fmt.Errorf("%w: %s declares binding %q twice", ErrInvalidFixture, section.kind, name)
			}
			seen[name] = true
		}
	}
	return nil
}

// checkCollisions rejects fixture bindings that already exist in the
// environment. Callers must hold mu.
func (e *Env) checkCollisions(f *fixture) error {
	for _, name := range bindingNames(f.KVNamespaces) {
		if _, ok := e.kv[name]; ok {
			return fmt.Errorf("%w: kv binding %q already exists", ErrInvalidFixture, name)
		}
	}
	for _, name := range bindingNames(f.D1Databases) {
		if _, ok := e.db[name]; ok {
			return fmt.Errorf("%w: database binding %q already exists", ErrInvalidFixture, name)
		}
	}
	for _, name := range bindingNames(f.R2Buckets) {
		if _, ok := e.buckets[name]; ok {
			return fmt.Errorf("%w: bucket binding %q already exists", ErrInvalidFixture, name)
		}
	}
	for _, name := range bindingNames(f.Services) {
		if _, ok := e.services[name]; ok {
			return fmt.Errorf("%w: service binding %q already exists", ErrInvalidFixture, name)
		}
	}
	for _, name := range bindingNames(f.AnalyticsDatasets) {
		if _, ok := e.datasets[name]; ok {
			return fmt.Errorf("%w: dataset binding %q already exists", ErrInvalidFixture, name)
		}
	}
	return nil
}

// declResponse shapes a fixture response declaration into a service
// response.
func declResponse(d responseDecl) *service.Response {
	return &service.Response{
		Status:  d.Status,
		Headers: d.Headers,
		Body:    []byte(d.Body),
	}
}

// bucketSeed converts fixture seed text into payloads.
func bucketSeed(seed map[string]string) map[string][]byte {
	if seed == nil {
		return nil
	}
	out := make(map[string][]byte, len(seed))
	for k, v := range seed {
		out[k] = []byte(v)
	}
	return out
}

// named is satisfied by every declaration type.
type named interface {
	name() string
}

// bindingNames extracts the binding names of a declaration list in order.
func bindingNames[T named](decls []T) []string {
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.name()
	}
	return names
}
