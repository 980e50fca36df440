package clients

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	valkeyEmbeddingPrefix  = "takes:embedding:"
	valkeyPublishedSetKey  = "takes:published_fingerprints"
	valkeyPublishedSetTTL  = 7 * 24 * 60 * 60 // seconds
	valkeyOperationRetries = 3
)

// ValkeyClient caches embeddings by text hash and keeps a fingerprint set of
// published take texts so repeated candidates can be rejected without another
// provider round trip.
type ValkeyClient struct {
	Client valkey.Client
	mu     sync.Mutex
}

func NewValkeyClient() (*ValkeyClient, error) {
	client, err := dialValkey()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	if c := client.Do(ctx, client.B().Ping().Build()); c.Error() != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", c.Error())
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey")
	return &ValkeyClient{Client: client}, nil
}

func dialValkey() (valkey.Client, error) {
	valkeyAddr := os.Getenv("VALKEY_INIT_ADDRESS")
	valkeyPassword := os.Getenv("VALKEY_PASSWORD")
	useTLS := os.Getenv("VALKEY_TLS") == "true"

	opts := valkey.ClientOption{
		InitAddress: []string{
			valkeyAddr,
		},
		Password:         valkeyPassword,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}

	if useTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}
	return client, nil
}

func (vc *ValkeyClient) recreateClient() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ValkeyClient] Recreate failed and was recovered from panic",
				slog.Any("panic", r))
		}
	}()

	vc.mu.Lock()
	defer vc.mu.Unlock()
	slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
	vc.Client.Close()

	client, err := dialValkey()
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	if c := client.Do(ctx, client.B().Ping().Build()); c.Error() != nil {
		panic(fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", c.Error()))
	}

	slog.Info("[ValkeyClient] Successfully reconnected to valkey")
	vc.Client = client
}

func (vc *ValkeyClient) Close() {
	vc.Client.Close()
}

// TextFingerprint is the stable cache key for a piece of take text.
func TextFingerprint(text string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(hash[:])
}

// CachedEmbedding returns a previously cached vector for text, if any.
func (vc *ValkeyClient) CachedEmbedding(ctx context.Context, text string) ([]float64, bool) {
	key := valkeyEmbeddingPrefix + TextFingerprint(text)
	res := vc.Client.Do(ctx, vc.Client.B().Get().Key(key).Build())

	if err := res.Error(); err != nil {
		// A nil reply is an ordinary cache miss, not worth a retry.
		if isConnectionError(err) {
			vc.recreateClient()
		}
		return nil, false
	}

	raw, err := res.AsBytes()
	if err != nil {
		return nil, false
	}

	var vector []float64
	if err := json.Unmarshal(raw, &vector); err != nil {
		slog.Warn("[ValkeyClient] Failed to decode cached embedding",
			slog.String("error", err.Error()))
		return nil, false
	}
	return vector, true
}

// CacheEmbedding stores vector under the text's fingerprint with a TTL.
func (vc *ValkeyClient) CacheEmbedding(ctx context.Context, text string, vector []float64, ttl time.Duration) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("[ValkeyClient] failed to marshal embedding: %w", err)
	}

	key := valkeyEmbeddingPrefix + TextFingerprint(text)
	res := vc.DoWithRetry(ctx,
		vc.Client.B().Set().Key(key).Value(string(raw)).ExSeconds(int64(ttl.Seconds())).Build(),
		valkeyOperationRetries)
	if err := res.Error(); err != nil {
		if isConnectionError(err) {
			vc.recreateClient()
		}
		return err
	}
	return nil
}

// MarkPublished adds the text fingerprint to the published set.
func (vc *ValkeyClient) MarkPublished(ctx context.Context, text string) error {
	completed := []valkey.Completed{
		vc.Client.B().Sadd().Key(valkeyPublishedSetKey).Member(TextFingerprint(text)).Build(),
		vc.Client.B().Expire().Key(valkeyPublishedSetKey).Seconds(valkeyPublishedSetTTL).Build(),
	}

	responses := vc.DoMultiWithRetry(ctx, completed, valkeyOperationRetries)
	for _, res := range responses {
		if err := res.Error(); err != nil {
			return err
		}
	}
	return nil
}

// IsPublished reports whether the exact text has already been published.
func (vc *ValkeyClient) IsPublished(ctx context.Context, text string) bool {
	res := vc.DoWithRetry(ctx,
		vc.Client.B().Sismember().Key(valkeyPublishedSetKey).Member(TextFingerprint(text)).Build(),
		valkeyOperationRetries)

	if err := res.Error(); isConnectionError(err) {
		vc.recreateClient()
	}

	ok, err := res.AsBool()
	if err != nil {
		return false
	}
	return ok
}

func (vc *ValkeyClient) DoMultiWithRetry(ctx context.Context, completed []valkey.Completed, retries int) []valkey.ValkeyResult {
	var results []valkey.ValkeyResult

	for i := 0; i < retries; i++ {
		results = vc.Client.DoMulti(ctx, completed...)
		hasErr := false
		for _, r := range results {
			if r.Error() != nil {
				hasErr = true
				slog.Warn("[ValkeyClient] Do Multi failed",
					slog.Int("attempt", i+1),
					slog.String("error", r.Error().Error()))
				if isConnectionError(r.Error()) {
					vc.recreateClient()
				}
				break
			}
		}
		if !hasErr {
			break
		}
		time.Sleep(time.Millisecond * 250)
	}

	return results
}

func (vc *ValkeyClient) DoWithRetry(ctx context.Context, completed valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		result = vc.Client.Do(ctx, completed)
		if result.Error() == nil {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", result.Error().Error()))

		time.Sleep(250 * time.Millisecond)
	}

	return result
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
