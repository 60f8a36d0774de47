package memory

import "github.com/picklr-io/converge/pkg/cloud"

// Fail queues errors returned by the next calls of op on ref, one per call.
func (p *Provider) Fail(op string, ref cloud.Ref, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := op + " " + ref.Address()
	p.faults[key] = append(p.faults[key], errs...)
}

// Seed stores an object as if it had been created outside this process.
func (p *Provider) Seed(ref cloud.Ref, fields map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[ref.Address()] = &object{fields: copyFields(fields), sensitive: map[string]string{}}
}

// Drift overwrites observed fields of an existing object.
func (p *Provider) Drift(ref cloud.Ref, fields map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[ref.Address()]
	if !ok {
		return
	}
	for k, v := range fields {
		obj.fields[k] = v
	}
}

// Race makes the next Create of ref lose to a concurrent writer that created
// the object with fields.
func (p *Provider) Race(ref cloud.Ref, fields map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.races[ref.Address()] = copyFields(fields)
}

// Calls returns how often op was invoked, optionally for one ref.
func (p *Provider) Calls(op string, ref ...cloud.Ref) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(ref) > 0 {
		return p.calls[op+" "+ref[0].Address()]
	}
	return p.calls[op]
}

// Fields returns the observed fields of an object, or nil.
func (p *Provider) Fields(ref cloud.Ref) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[ref.Address()]
	if !ok {
		return nil
	}
	return copyFields(obj.fields)
}

// SensitiveField returns a write-only field as last written.
func (p *Provider) SensitiveField(ref cloud.Ref, field string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if obj, ok := p.objects[ref.Address()]; ok {
		return obj.sensitive[field]
	}
	return ""
}

// Versions returns the version log of a secret, oldest first.
func (p *Provider) Versions(secret string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, v := range p.versions[secret] {
		out = append(out, string(v))
	}
	return out
}

// Grants returns "role member" entries bound on ref.
func (p *Provider) Grants(ref cloud.Ref) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.grants[ref.Address()])
}
