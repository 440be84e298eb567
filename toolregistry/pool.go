package toolregistry

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/flowforge/agentcore/workflow"
)

// Pool builds Registries while reusing each integration's bound tools
// (and their rate limiters) across requests that present the same
// credential, instead of constructing fresh clients every call ("Per-request
// shared clients": pooled shared handles keyed by (provider,
// credentials-hash); do not recreate per request). A request whose
// credential for an integration differs from any cached one simply gets a
// new cache entry; the old one is never evicted, so rotating a credential
// invalidates it implicitly rather than requiring an explicit purge, the
// same tradeoff Service.registryCache and Service.locks already make.
type Pool struct {
	catalog []IntegrationDef

	sf singleflight.Group

	mu    sync.Mutex
	cache map[string]*pooledIntegration
}

type pooledIntegration struct {
	tools []*boundTool
	info  workflow.IntegrationInfo
}

// NewPool builds a Pool over catalog, the static integration/tool
// descriptions Build already consumes.
func NewPool(catalog []IntegrationDef) *Pool {
	return &Pool{catalog: catalog, cache: make(map[string]*pooledIntegration)}
}

// Build implements the same contract as the package-level Build, but
// resolves each authorized integration from the pool rather than
// constructing it fresh.
func (p *Pool) Build(credentials map[string]string) *Registry {
	reg := &Registry{}
	for _, integ := range p.catalog {
		cred, ok := credentials[integ.CredentialKey]
		if !ok || cred == "" {
			continue
		}
		pooled := p.getOrBuild(integ, cred)
		reg.tools = append(reg.tools, pooled.tools...)
		reg.integrations = append(reg.integrations, pooled.info)
	}
	return reg
}

// getOrBuild returns the cached integration for (integ.IntegrationID, cred),
// building it at most once even under concurrent callers presenting the
// same credential for the first time.
func (p *Pool) getOrBuild(integ IntegrationDef, cred string) *pooledIntegration {
	key := integ.IntegrationID + ":" + credentialHash(cred)

	if c, ok := p.lookup(key); ok {
		return c
	}

	v, _, _ := p.sf.Do(key, func() (interface{}, error) {
		if c, ok := p.lookup(key); ok {
			return c, nil
		}
		c := buildIntegration(integ, cred)
		p.mu.Lock()
		p.cache[key] = c
		p.mu.Unlock()
		return c, nil
	})
	return v.(*pooledIntegration)
}

func (p *Pool) lookup(key string) (*pooledIntegration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cache[key]
	return c, ok
}

func buildIntegration(integ IntegrationDef, cred string) *pooledIntegration {
	tools := make([]*boundTool, 0, len(integ.Tools))
	for _, td := range integ.Tools {
		limiter := rate.NewLimiter(rate.Limit(td.RatePerSecond), maxInt(td.Burst, 1))
		tools = append(tools, &boundTool{
			def:           td,
			integrationID: integ.IntegrationID,
			approval:      integ.ApprovalClass,
			inner:         td.New(cred),
			limiter:       limiter,
		})
	}
	return &pooledIntegration{
		tools: tools,
		info: workflow.IntegrationInfo{
			IntegrationID: integ.IntegrationID,
			DisplayName:   integ.DisplayName,
			IconID:        integ.IconID,
			ToolCount:     len(integ.Tools),
			ApprovalClass: integ.ApprovalClass,
		},
	}
}

func credentialHash(cred string) string {
	sum := sha256.Sum256([]byte(cred))
	return hex.EncodeToString(sum[:])
}
