package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaronwang/lot-auction/shared/models"
)

// Key layout:
//
//	lot:{id}        hash   lot record, prices in cents, times in unix ms
//	lot:{id}:bids   zset   bid ids scored by amount in cents
//	bid:{id}        hash   bid record
//	lots:pending    zset   lot ids not yet activated, scored by start time
//	lots:open       zset   lot ids not yet settled, scored by end time
const (
	bidKeyPrefix   = "bid:"
	pendingLotsKey = "lots:pending"
	openLotsKey    = "lots:open"
)

func lotKey(lotID string) string     { return "lot:" + lotID }
func lotBidsKey(lotID string) string { return "lot:" + lotID + ":bids" }
func bidKey(bidID string) string     { return bidKeyPrefix + bidID }

// EventChannel is the Pub/Sub channel carrying events for lotID
func EventChannel(lotID string) string { return models.LotEventChannel(lotID) }

// Client wraps the Redis client with auction ledger operations.
// All lot mutations run as Lua scripts, so each read-check-write executes
// atomically on the Redis server.
type Client struct {
	client *redis.Client

	insertScript     *redis.Script
	snapshotScript   *redis.Script
	appendScript     *redis.Script
	removeScript     *redis.Script
	transitionScript *redis.Script
	deleteScript     *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client:           rdb,
		insertScript:     redis.NewScript(insertLua),
		snapshotScript:   redis.NewScript(snapshotFn + snapshotLua),
		appendScript:     redis.NewScript(snapshotFn + appendLua),
		removeScript:     redis.NewScript(snapshotFn + removeLua),
		transitionScript: redis.NewScript(snapshotFn + transitionLua),
		deleteScript:     redis.NewScript(deleteLua),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Every script answers with a status string first. Snapshot-returning
// scripts follow it with the lot hash and the highest bid hash (empty when
// the lot has no bids), both as flat HGETALL field/value lists.
const snapshotFn = `
local function snapshot(lot_key, bid_prefix)
	local lot = redis.call('HGETALL', lot_key)
	local top = redis.call('HGET', lot_key, 'highest_bid_id')
	local bid = {}
	if top and top ~= '' then
		bid = redis.call('HGETALL', bid_prefix .. top)
	end
	return lot, bid
end
`

// KEYS[1] lot, KEYS[2] lots:pending, KEYS[3] lots:open
// ARGV[1] lot id, ARGV[2] start ms, ARGV[3] end ms, ARGV[4..] hash field/value pairs
const insertLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then
	return {'EXISTS'}
end
local fields = {}
for i = 4, #ARGV do
	fields[#fields + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(fields))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return {'OK'}
`

// KEYS[1] lot; ARGV[1] bid key prefix
const snapshotLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {'NOT_FOUND'}
end
local lot, bid = snapshot(KEYS[1], ARGV[1])
return {'OK', lot, bid}
`

// KEYS[1] lot, KEYS[2] lot bids, KEYS[3] bid, KEYS[4] lots:pending
// ARGV[1] expected version, ARGV[2] status, ARGV[3] bid id, ARGV[4] lot id,
// ARGV[5] bidder id, ARGV[6] amount cents, ARGV[7] created ms, ARGV[8] bid key prefix
const appendLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {'NOT_FOUND'}
end
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then
	return {'CONFLICT'}
end
local current = tonumber(redis.call('HGET', KEYS[1], 'current_price'))
if tonumber(ARGV[6]) <= current then
	return {'TOO_LOW'}
end
local seq = redis.call('HINCRBY', KEYS[1], 'bid_seq', 1)
redis.call('HINCRBY', KEYS[1], 'version', 1)
redis.call('HSET', KEYS[1], 'current_price', ARGV[6], 'status', ARGV[2], 'highest_bid_id', ARGV[3], 'updated_at', ARGV[7])
redis.call('HSET', KEYS[3], 'id', ARGV[3], 'lot_id', ARGV[4], 'bidder_id', ARGV[5], 'amount', ARGV[6], 'seq', seq, 'created_at', ARGV[7])
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[3])
if ARGV[2] ~= 'pending' then
	redis.call('ZREM', KEYS[4], ARGV[4])
end
local lot, bid = snapshot(KEYS[1], ARGV[8])
return {'OK', lot, bid}
`

// KEYS[1] lot, KEYS[2] lot bids, KEYS[3] bid
// ARGV[1] expected version, ARGV[2] bid id, ARGV[3] updated ms, ARGV[4] bid key prefix, ARGV[5] lot id
const removeLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {'NOT_FOUND'}
end
if redis.call('HGET', KEYS[3], 'lot_id') ~= ARGV[5] then
	return {'BID_NOT_FOUND'}
end
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then
	return {'CONFLICT'}
end
redis.call('DEL', KEYS[3])
redis.call('ZREM', KEYS[2], ARGV[2])
local price = redis.call('HGET', KEYS[1], 'starting_price')
local highest = ''
local top = redis.call('ZREVRANGE', KEYS[2], 0, 0)
if #top > 0 then
	highest = top[1]
	price = redis.call('HGET', ARGV[4] .. highest, 'amount')
end
redis.call('HSET', KEYS[1], 'current_price', price, 'highest_bid_id', highest, 'updated_at', ARGV[3])
redis.call('HINCRBY', KEYS[1], 'version', 1)
local lot, bid = snapshot(KEYS[1], ARGV[4])
return {'OK', lot, bid}
`

// KEYS[1] lot, KEYS[2] lots:pending, KEYS[3] lots:open
// ARGV[1] expected version, ARGV[2] status, ARGV[3] price cents, ARGV[4] updated ms,
// ARGV[5] lot id, ARGV[6] bid key prefix
const transitionLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {'NOT_FOUND'}
end
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then
	return {'CONFLICT'}
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'current_price', ARGV[3], 'updated_at', ARGV[4])
redis.call('HINCRBY', KEYS[1], 'version', 1)
if ARGV[2] ~= 'pending' then
	redis.call('ZREM', KEYS[2], ARGV[5])
end
if ARGV[2] == 'sold' or ARGV[2] == 'expired' then
	redis.call('ZREM', KEYS[3], ARGV[5])
end
local lot, bid = snapshot(KEYS[1], ARGV[6])
return {'OK', lot, bid}
`

// KEYS[1] lot, KEYS[2] lot bids, KEYS[3] lots:pending, KEYS[4] lots:open
// ARGV[1] lot id, ARGV[2] bid key prefix
//
// Bid ids come back from the zset in ascending amount, which is admission
// order because every admitted bid exceeds all bids still on the lot.
const deleteLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {'NOT_FOUND'}
end
local lot = redis.call('HGETALL', KEYS[1])
local ids = redis.call('ZRANGE', KEYS[2], 0, -1)
local bidders = {}
local seen = {}
for _, id in ipairs(ids) do
	local key = ARGV[2] .. id
	local bidder = redis.call('HGET', key, 'bidder_id')
	if bidder and not seen[bidder] then
		seen[bidder] = true
		bidders[#bidders + 1] = bidder
	end
	redis.call('DEL', key)
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
return {'OK', lot, bidders}
`
