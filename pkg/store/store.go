// Package store defines the read-only metadata-store contract this system
// consumes: an opaque, async key-value snapshot keyed by
// account/ARN/metadata-key, by organization ID, and by named index, plus
// a pluggable cache layer in front of it.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/smithy-go/logging"
)

// Client is the external object-store collaborator: read-only metadata
// lookup by account/ARN/key, by organization, and by named index. No
// ordering guarantees across keys.
type Client interface {
	// GetResource fetches the JSON metadata value for (accountID, arn,
	// metadataKey). found is false when the key is absent (not an error).
	GetResource(ctx context.Context, accountID, arn, metadataKey string) (value json.RawMessage, found bool, err error)

	// GetOrgMetadata fetches org-scoped metadata (org hierarchy, SCP/RCP
	// documents) by organization ID and key.
	GetOrgMetadata(ctx context.Context, orgID, key string) (value json.RawMessage, found bool, err error)

	// GetIndex resolves a named index lookup, e.g. "accounts-to-orgs" or
	// "buckets-to-accounts", for a single index key.
	GetIndex(ctx context.Context, indexName, key string) ([]string, error)
}

// cacheKey identifies one store lookup for caching purposes.
type cacheKey struct {
	kind      string // "resource", "org", "index"
	accountID string
	arn       string
	metaKey   string
	indexName string
}

func resourceKey(accountID, arn, metadataKey string) cacheKey {
	return cacheKey{kind: "resource", accountID: accountID, arn: arn, metaKey: metadataKey}
}

func orgKey(orgID, key string) cacheKey {
	return cacheKey{kind: "org", accountID: orgID, metaKey: key}
}

func indexKey(indexName, key string) cacheKey {
	return cacheKey{kind: "index", indexName: indexName, metaKey: key}
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", k.kind, k.accountID, k.arn, k.indexName, k.metaKey)
}

// CachedClient wraps a Client with a CacheProvider, so repeated lookups of
// the same key within an invocation hit the cache instead of the store.
type CachedClient struct {
	inner  Client
	cache  CacheProvider
	logger logging.Logger
}

// NewCachedClient wraps inner with cache. If logger is nil, logging.Nop{}
// is used.
func NewCachedClient(inner Client, cache CacheProvider, logger logging.Logger) *CachedClient {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &CachedClient{inner: inner, cache: cache, logger: logger}
}

func (c *CachedClient) GetResource(ctx context.Context, accountID, arn, metadataKey string) (json.RawMessage, bool, error) {
	return c.cachedLookup(ctx, resourceKey(accountID, arn, metadataKey), func(ctx context.Context) (json.RawMessage, error) {
		v, found, err := c.inner.GetResource(ctx, accountID, arn, metadataKey)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return v, nil
	})
}

func (c *CachedClient) GetOrgMetadata(ctx context.Context, orgID, key string) (json.RawMessage, bool, error) {
	return c.cachedLookup(ctx, orgKey(orgID, key), func(ctx context.Context) (json.RawMessage, error) {
		v, found, err := c.inner.GetOrgMetadata(ctx, orgID, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return v, nil
	})
}

func (c *CachedClient) cachedLookup(ctx context.Context, key cacheKey, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, bool, error) {
	v, err := c.cache.Get(ctx, key.String(), fetch)
	if err != nil {
		c.logger.Logf(logging.Warn, "store: lookup %s failed: %v", key, err)
		return nil, false, err
	}
	return v, v != nil, nil
}

// GetIndex is not cached: index lookups are cheap and the result sets are
// typically consumed once per invocation.
func (c *CachedClient) GetIndex(ctx context.Context, indexName, key string) ([]string, error) {
	return c.inner.GetIndex(ctx, indexName, key)
}

// MissingPolicyDocument signals a policy referenced by metadata but absent
// from the store. Treated as non-fatal: logged and handled as an empty
// policy by the caller.
type MissingPolicyDocument struct {
	AccountID, ARN, Key string
}

func (e *MissingPolicyDocument) Error() string {
	return fmt.Sprintf("missing policy document: account=%s arn=%s key=%s", e.AccountID, e.ARN, e.Key)
}
