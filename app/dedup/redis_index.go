package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fpKeyPrefix   = "dedup:fp:"
	bandKeyPrefix = "dedup:band:"

	claimAttempts   = 3
	pendingPollStep = 200 * time.Millisecond
)

// claimScript atomically re-checks the band sets for members that appeared
// after the probe and, when none did, stores the fingerprint as pending and
// adds it to its band sets. It returns the ids of any unexamined members so
// the caller can evaluate them before retrying.
var claimScript = redis.NewScript(`
local seen = {}
for i = 5, #ARGV do
	seen[ARGV[i]] = true
end
seen[ARGV[1]] = true

local conflicts = {}
for i = 2, #KEYS do
	local members = redis.call('SMEMBERS', KEYS[i])
	for _, id in ipairs(members) do
		if not seen[id] then
			conflicts[#conflicts + 1] = id
			seen[id] = true
		end
	end
end

if #conflicts > 0 then
	return conflicts
end

redis.call('HSET', KEYS[1], 'sketch', ARGV[2], 'bucket', ARGV[3], 'state', 'pending')
redis.call('EXPIRE', KEYS[1], ARGV[4])
for i = 2, #KEYS do
	redis.call('SADD', KEYS[i], ARGV[1])
	redis.call('EXPIRE', KEYS[i], ARGV[4])
end
return {}
`)

// RedisIndex is the shared duplicate index for multi-instance deployments.
// Band sets map band signatures to fingerprint ids and entry hashes hold
// sketch, bucket and claim state. Claims are taken through a Lua script so
// probe-and-claim stays atomic across instances, and every key carries a
// TTL of one recency window so expiry needs no sweeper.
var _ Index = (*RedisIndex)(nil)

type RedisIndex struct {
	client *redis.Client
	params Params
}

func NewRedisIndex(addr string, params Params) (*RedisIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisIndex{client: client, params: params}, nil
}

func (idx *RedisIndex) Close() error {
	return idx.client.Close()
}

func (idx *RedisIndex) ProbeAndClaim(ctx context.Context, fp *Fingerprint) (*Outcome, error) {
	examined := map[string]bool{fp.ID: true}

	members, err := idx.bandMembers(ctx, fp)
	if err != nil {
		return nil, err
	}

	outcome, pendings, err := idx.evaluate(ctx, fp, members, examined)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return outcome, nil
	}

	claimed := false
	for attempt := 0; attempt < claimAttempts; attempt++ {
		conflicts, err := idx.tryClaim(ctx, fp, examined)
		if err != nil {
			return nil, err
		}

		if len(conflicts) == 0 {
			claimed = true
			break
		}

		outcome, more, err := idx.evaluate(ctx, fp, conflicts, examined)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}

		pendings = append(pendings, more...)
	}

	if !claimed {
		return nil, fmt.Errorf("failed to claim fingerprint %s after %d attempts", fp.ID, claimAttempts)
	}

	claim := &redisClaim{idx: idx, fp: fp}

	for _, id := range pendings {
		articleID, sketch, err := idx.awaitPending(ctx, id)
		if err != nil {
			if rbErr := claim.Rollback(context.Background()); rbErr != nil {
				return nil, rbErr
			}
			return nil, err
		}

		if articleID == "" {
			// Rolled back or expired while we waited.
			continue
		}

		if err := claim.Rollback(ctx); err != nil {
			return nil, err
		}

		return &Outcome{
			Status:     StatusDuplicate,
			ArticleID:  articleID,
			Similarity: EstimatedJaccard(fp.Sketch, sketch),
		}, nil
	}

	return &Outcome{Status: StatusNew, Claim: claim}, nil
}

// Restore is a no-op: the index lives in redis and survives restarts.
func (idx *RedisIndex) Restore(entries []Entry) error {
	return nil
}

// Sweep is a no-op: every key expires on its own after one recency window.
func (idx *RedisIndex) Sweep(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

// bandMembers returns the union of the band sets of fp.
func (idx *RedisIndex) bandMembers(ctx context.Context, fp *Fingerprint) ([]string, error) {
	pipe := idx.client.Pipeline()

	cmds := make([]*redis.StringSliceCmd, len(fp.Bands))
	for i, sig := range fp.Bands {
		cmds[i] = pipe.SMembers(ctx, bandKey(sig))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read band sets: %w", err)
	}

	seen := make(map[string]struct{})
	var members []string
	for _, cmd := range cmds {
		for _, id := range cmd.Val() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			members = append(members, id)
		}
	}

	return members, nil
}

// evaluate compares fp against the given candidate ids, marking them
// examined. It returns a duplicate outcome when a committed near-duplicate
// is found, otherwise the ids of matching claims that are still pending.
func (idx *RedisIndex) evaluate(ctx context.Context, fp *Fingerprint, ids []string, examined map[string]bool) (*Outcome, []string, error) {
	var fresh []string
	for _, id := range ids {
		if !examined[id] {
			examined[id] = true
			fresh = append(fresh, id)
		}
	}

	if len(fresh) == 0 {
		return nil, nil, nil
	}

	pipe := idx.client.Pipeline()

	cmds := make([]*redis.MapStringStringCmd, len(fresh))
	for i, id := range fresh {
		cmds[i] = pipe.HGetAll(ctx, fpKeyPrefix+id)
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("failed to read fingerprint entries: %w", err)
	}

	var bestArticleID string
	var bestSim float64
	var pendings []string

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}

		bucket, err := strconv.ParseInt(fields["bucket"], 10, 64)
		if err != nil {
			continue
		}
		if !idx.params.WithinWindow(fp.Bucket, bucket) {
			continue
		}

		sketch, err := DecodeSketch([]byte(fields["sketch"]))
		if err != nil {
			continue
		}

		sim := EstimatedJaccard(fp.Sketch, sketch)
		if sim < idx.params.Threshold {
			continue
		}

		if fields["state"] == "committed" {
			if sim > bestSim {
				bestArticleID = fields["article"]
				bestSim = sim
			}
		} else {
			pendings = append(pendings, fresh[i])
		}
	}

	if bestArticleID != "" {
		return &Outcome{Status: StatusDuplicate, ArticleID: bestArticleID, Similarity: bestSim}, nil, nil
	}

	return nil, pendings, nil
}

// tryClaim runs the claim script. It returns the ids of band members that
// appeared since the probe, or nothing when the claim succeeded.
func (idx *RedisIndex) tryClaim(ctx context.Context, fp *Fingerprint, examined map[string]bool) ([]string, error) {
	keys := make([]string, 0, len(fp.Bands)+1)
	keys = append(keys, fpKeyPrefix+fp.ID)
	for _, sig := range fp.Bands {
		keys = append(keys, bandKey(sig))
	}

	args := make([]interface{}, 0, len(examined)+4)
	args = append(args,
		fp.ID,
		string(EncodeSketch(fp.Sketch)),
		strconv.FormatInt(fp.Bucket, 10),
		idx.ttlSeconds(),
	)
	for id := range examined {
		if id != fp.ID {
			args = append(args, id)
		}
	}

	result, err := claimScript.Run(ctx, idx.client, keys, args...).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim fingerprint: %w", err)
	}

	return result, nil
}

// awaitPending polls a pending claim until it resolves or the wait budget
// runs out. It returns the owning article id when the claim committed, or
// empty when it rolled back, expired or stayed pending past the deadline.
func (idx *RedisIndex) awaitPending(ctx context.Context, id string) (string, []uint64, error) {
	deadline := time.Now().Add(idx.params.PendingWait)

	for {
		fields, err := idx.client.HGetAll(ctx, fpKeyPrefix+id).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", nil, fmt.Errorf("failed to poll pending fingerprint: %w", err)
		}

		if len(fields) == 0 {
			return "", nil, nil
		}

		if fields["state"] == "committed" {
			sketch, err := DecodeSketch([]byte(fields["sketch"]))
			if err != nil {
				return "", nil, nil
			}
			return fields["article"], sketch, nil
		}

		if time.Now().After(deadline) {
			return "", nil, nil
		}

		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(pendingPollStep):
		}
	}
}

func (idx *RedisIndex) ttlSeconds() int64 {
	return int64((idx.params.Window + idx.params.BucketWidth) / time.Second)
}

func bandKey(sig uint64) string {
	return bandKeyPrefix + strconv.FormatUint(sig, 16)
}

type redisClaim struct {
	idx *RedisIndex
	fp  *Fingerprint
}

func (c *redisClaim) Commit(ctx context.Context, articleID string) error {
	key := fpKeyPrefix + c.fp.ID

	pipe := c.idx.client.Pipeline()
	pipe.HSet(ctx, key, "state", "committed", "article", articleID)
	pipe.Expire(ctx, key, time.Duration(c.idx.ttlSeconds())*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}

	return nil
}

func (c *redisClaim) Rollback(ctx context.Context) error {
	pipe := c.idx.client.Pipeline()
	for _, sig := range c.fp.Bands {
		pipe.SRem(ctx, bandKey(sig), c.fp.ID)
	}
	pipe.Del(ctx, fpKeyPrefix+c.fp.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to roll back claim: %w", err)
	}

	return nil
}
