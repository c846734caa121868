package ratelimit

import "github.com/redis/go-redis/v9"

// limitScript runs the whole check as one atomic unit: token refill, window
// pruning, adaptive rate adjustment, the admit/deny decision, metrics and key
// TTLs. Concurrent callers for the same identifier serialize on the script,
// so there is no read-modify-write race between instances.
//
// KEYS[1] token state hash, KEYS[2] window sorted set, KEYS[3] metrics hash.
// ARGV: now (ms), oneSecondAgo (ms), windowMs, maxRequests, tokensPerInterval,
// intervalMs, highUsageThreshold, adaptiveMultiplier, maxPerSecond,
// ttlSeconds.
//
// Returns {admitted, floor(tokens), sustainedUsage, adaptiveFlag, refillRate}.
var limitScript = redis.NewScript(`
local tokensKey = KEYS[1]
local windowKey = KEYS[2]
local metricsKey = KEYS[3]

local now = tonumber(ARGV[1])
local oneSecondAgo = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local maxRequests = tonumber(ARGV[4])
local tokensPerInterval = tonumber(ARGV[5])
local intervalMs = tonumber(ARGV[6])
local highUsageThreshold = tonumber(ARGV[7])
local adaptiveMultiplier = tonumber(ARGV[8])
local maxPerSecond = tonumber(ARGV[9])
local ttlSeconds = tonumber(ARGV[10])

local baseRate = tokensPerInterval / intervalMs

local state = redis.call('HMGET', tokensKey, 'tokens', 'lastRefill', 'refillRate', 'isAdaptive')
local tokens = tonumber(state[1])
local lastRefill = tonumber(state[2])
local refillRate = tonumber(state[3])
local isAdaptive = state[4] == '1'

if tokens == nil or lastRefill == nil or refillRate == nil then
  tokens = tokensPerInterval
  lastRefill = now
  refillRate = baseRate
  isAdaptive = false
end

-- continuous fractional refill
local elapsed = now - lastRefill
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(tokensPerInterval, tokens + elapsed * refillRate)
lastRefill = now

redis.call('ZREMRANGEBYSCORE', windowKey, 0, now - windowMs)
local sustained = redis.call('ZCARD', windowKey)
local recent = redis.call('ZCOUNT', windowKey, oneSecondAgo, now)

if sustained >= maxRequests * highUsageThreshold then
  if not isAdaptive then
    refillRate = refillRate * adaptiveMultiplier
    isAdaptive = true
  end
elseif isAdaptive then
  refillRate = baseRate
  isAdaptive = false
end

local admitted = 0
if tokens >= 1 and recent < maxPerSecond then
  admitted = 1
  tokens = tokens - 1
  -- the sequence keeps members unique when several requests land in one ms
  local seq = redis.call('HINCRBY', tokensKey, 'seq', 1)
  redis.call('ZADD', windowKey, now, now .. '-' .. seq)
  redis.call('HINCRBY', metricsKey, 'hits', 1)
else
  redis.call('HINCRBY', metricsKey, 'blocks', 1)
end

redis.call('HSET', tokensKey,
  'tokens', tokens,
  'lastRefill', lastRefill,
  'refillRate', refillRate,
  'isAdaptive', isAdaptive and '1' or '0')
redis.call('EXPIRE', tokensKey, ttlSeconds)
redis.call('EXPIRE', windowKey, ttlSeconds)
redis.call('EXPIRE', metricsKey, 86400)

local adaptiveFlag = 0
if isAdaptive then
  adaptiveFlag = 1
end

return {admitted, math.floor(tokens), sustained, adaptiveFlag, tostring(refillRate)}
`)
