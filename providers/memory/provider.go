// Package memory is an in-process cloud used for dry runs and tests. It keeps
// objects, secret version logs and access grants in maps and can be told to
// fail, drift or race.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/picklr-io/converge/pkg/cloud"
)

// Operation names used for fault injection and call counting.
const (
	OpDescribe = "describe"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpGrant    = "grant"
	OpAddVer   = "add-version"
	OpAccess   = "access-version"
)

type object struct {
	fields    map[string]string
	sensitive map[string]string
}

type Provider struct {
	mu       sync.Mutex
	objects  map[string]*object
	versions map[string][][]byte
	grants   map[string]map[string]bool
	faults   map[string][]error
	races    map[string]map[string]string
	calls    map[string]int
}

func New() *Provider {
	return &Provider{
		objects:  make(map[string]*object),
		versions: make(map[string][][]byte),
		grants:   make(map[string]map[string]bool),
		faults:   make(map[string][]error),
		races:    make(map[string]map[string]string),
		calls:    make(map[string]int),
	}
}

var _ cloud.Client = (*Provider)(nil)

func (p *Provider) Describe(ctx context.Context, ref cloud.Ref) (cloud.ResourceState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(ctx, OpDescribe, ref); err != nil {
		return cloud.ResourceState{}, err
	}
	obj, ok := p.objects[ref.Address()]
	if !ok {
		return cloud.Absent(), nil
	}
	return cloud.Present(copyFields(obj.fields)), nil
}

func (p *Provider) Create(ctx context.Context, spec cloud.ResourceSpec) (cloud.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(ctx, OpCreate, spec.Ref); err != nil {
		return cloud.Applied, err
	}
	addr := spec.Address()
	if fields, ok := p.races[addr]; ok {
		delete(p.races, addr)
		p.objects[addr] = &object{fields: fields, sensitive: map[string]string{}}
		return cloud.AlreadyExists, nil
	}
	if _, ok := p.objects[addr]; ok {
		return cloud.AlreadyExists, nil
	}

	obj := &object{fields: spec.PublicFields(), sensitive: map[string]string{}}
	for _, f := range spec.Sensitive {
		obj.sensitive[f] = spec.DesiredFields[f]
	}
	p.objects[addr] = obj
	return cloud.Applied, nil
}

// Update replaces the managed fields of an object. Fields outside the managed
// set are neither removed nor written.
func (p *Provider) Update(ctx context.Context, spec cloud.ResourceSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(ctx, OpUpdate, spec.Ref); err != nil {
		return err
	}
	obj, ok := p.objects[spec.Address()]
	if !ok {
		return cloud.NotFound(OpUpdate, spec.Ref, errors.New("object does not exist"))
	}

	managed := spec.ManagedKeys()
	for k := range obj.fields {
		if owned(managed, k) {
			delete(obj.fields, k)
		}
	}
	for k, v := range spec.PublicFields() {
		if owned(managed, k) {
			obj.fields[k] = v
		}
	}
	if spec.Rotate {
		for _, f := range spec.Sensitive {
			obj.sensitive[f] = spec.DesiredFields[f]
		}
	}
	return nil
}

func (p *Provider) GrantAccess(ctx context.Context, ref cloud.Ref, member, role string) (cloud.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(ctx, OpGrant, ref); err != nil {
		return cloud.Applied, err
	}
	if ref.Kind != cloud.KindIAMBinding {
		if _, ok := p.objects[ref.Address()]; !ok {
			return cloud.Applied, cloud.NotFound(OpGrant, ref, errors.New("object does not exist"))
		}
	}

	addr := ref.Address()
	if p.grants[addr] == nil {
		p.grants[addr] = make(map[string]bool)
	}
	key := role + " " + member
	if p.grants[addr][key] {
		return cloud.AlreadyExists, nil
	}
	p.grants[addr][key] = true
	return cloud.Applied, nil
}

func (p *Provider) AddSecretVersion(ctx context.Context, secret string, value []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := cloud.Ref{Kind: cloud.KindSecret, Name: secret}
	if err := p.enter(ctx, OpAddVer, ref); err != nil {
		return "", err
	}
	if _, ok := p.objects[ref.Address()]; !ok {
		return "", cloud.NotFound(OpAddVer, ref, errors.New("secret does not exist"))
	}
	p.versions[secret] = append(p.versions[secret], append([]byte(nil), value...))
	return strconv.Itoa(len(p.versions[secret])), nil
}

func (p *Provider) AccessSecretVersion(ctx context.Context, secret, version string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := cloud.Ref{Kind: cloud.KindSecret, Name: secret}
	if err := p.enter(ctx, OpAccess, ref); err != nil {
		return nil, err
	}
	log := p.versions[secret]
	if len(log) == 0 {
		return nil, cloud.NotFound(OpAccess, ref, errors.New("secret has no versions"))
	}
	if version == "latest" {
		return append([]byte(nil), log[len(log)-1]...), nil
	}
	n, err := strconv.Atoi(version)
	if err != nil || n < 1 || n > len(log) {
		return nil, cloud.NotFound(OpAccess, ref, fmt.Errorf("version %q does not exist", version))
	}
	return append([]byte(nil), log[n-1]...), nil
}

// enter counts the call and pops a queued fault. Callers hold p.mu.
func (p *Provider) enter(ctx context.Context, op string, ref cloud.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.calls[op]++
	p.calls[op+" "+ref.Address()]++

	key := op + " " + ref.Address()
	if q := p.faults[key]; len(q) > 0 {
		err := q[0]
		if len(q) == 1 {
			delete(p.faults, key)
		} else {
			p.faults[key] = q[1:]
		}
		return err
	}
	return nil
}

func owned(managed []string, key string) bool {
	for _, m := range managed {
		if m == key || (strings.HasSuffix(m, ".") && strings.HasPrefix(key, m)) {
			return true
		}
	}
	return false
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// sortedKeys is used by the inspection helpers.
func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
