package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ahrav/hallucheck/internal/ports"
)

type cachedCompletion struct {
	Response  string
	TokensIn  int
	TokensOut int
}

// cachedLLM serves identical requests from a CacheStore. Only successful
// completions are stored; failures always reach the provider again.
type cachedLLM struct {
	next      CoreLLM
	store     ports.CacheStore
	namespace string
}

// CacheMiddleware creates middleware backed by store. Entries are keyed
// under namespace, so clients sharing a store never read each other's
// replies. A nil store disables caching.
func CacheMiddleware(store ports.CacheStore, namespace string) Middleware {
	return func(next CoreLLM) CoreLLM {
		if store == nil {
			return next
		}
		return &cachedLLM{next: next, store: store, namespace: namespace}
	}
}

// DoRequest returns a cached completion when one exists for the same model,
// prompt and options.
func (c *cachedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	key, err := cacheKey(c.namespace, c.next.GetModel(), prompt, opts)
	if err != nil {
		return c.next.DoRequest(ctx, prompt, opts)
	}

	if v, ok, err := c.store.Get(ctx, key); err == nil && ok {
		if hit, ok := v.(cachedCompletion); ok {
			return hit.Response, hit.TokensIn, hit.TokensOut, nil
		}
	}

	response, tokensIn, tokensOut, err := c.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		return response, tokensIn, tokensOut, err
	}

	// Cache write failures only cost a later duplicate call.
	_ = c.store.Set(ctx, key, cachedCompletion{Response: response, TokensIn: tokensIn, TokensOut: tokensOut}, 0)
	return response, tokensIn, tokensOut, nil
}

// cacheKey hashes the namespace, model, prompt and options. encoding/json
// sorts map keys, so equal option maps produce equal keys.
func cacheKey(namespace, model, prompt string, opts map[string]any) (string, error) {
	optBytes, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write(optBytes)
	return "llm:" + hex.EncodeToString(h.Sum(nil)), nil
}

// GetModel returns the model name from the wrapped implementation.
func (c *cachedLLM) GetModel() string { return c.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (c *cachedLLM) SetModel(m string) { c.next.SetModel(m) }
