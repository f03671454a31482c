package redis

import goredis "github.com/redis/go-redis/v9"

// Entry scripts share KEYS[1]=entry hash, KEYS[2]=region index.
// Time is the client clock in ms, passed as an argument.
//
// The index is a sorted set of keys scored by the ms time after which the
// hash is gone (+inf without expiry). Writes and Clear prune members whose
// score has passed, so keys evicted by PEXPIRE do not pile up.

// Numbers are formatted with %d before reaching redis.call so large values
// never turn into exponent notation.
const intLua = `
local function int(n) return string.format('%d', n) end
local function prune(idx, now)
  redis.call('ZREMRANGEBYSCORE', idx, '-inf', int(now))
end
`

// touch returns the entry value and refreshes its idle expiry, or false.
const touchLua = `
local function touch(now, member)
  local r = redis.call('HMGET', KEYS[1], 'v', 'i', 'e')
  if not r[1] then return false end
  local idle = tonumber(r[2]) or 0
  if idle > 0 then
    local px = idle
    local exp = tonumber(r[3]) or 0
    if exp > 0 then
      local left = exp - now
      if left <= 0 then
        redis.call('DEL', KEYS[1])
        return false
      end
      if left < px then px = left end
    end
    redis.call('PEXPIRE', KEYS[1], int(px))
    redis.call('ZADD', KEYS[2], int(now + px), member)
  end
  return r[1]
end
`

// put overwrites the entry. ARGV: value, now, ttl, idle, member.
const putLua = `
local function put()
  local now = tonumber(ARGV[2])
  local ttl = tonumber(ARGV[3])
  local idle = tonumber(ARGV[4])
  local exp = 0
  if ttl > 0 then exp = now + ttl end
  redis.call('DEL', KEYS[1])
  redis.call('HSET', KEYS[1], 'v', ARGV[1], 'i', int(idle), 'e', int(exp))
  local px = ttl
  if idle > 0 and (px == 0 or idle < px) then px = idle end
  local score = '+inf'
  if px > 0 then
    redis.call('PEXPIRE', KEYS[1], int(px))
    score = int(now + px)
  end
  prune(KEYS[2], now)
  redis.call('ZADD', KEYS[2], score, ARGV[5])
end
`

// ARGV: now, member
var getScript = goredis.NewScript(intLua + touchLua + `
local v = touch(tonumber(ARGV[1]), ARGV[2])
if not v then
  redis.call('ZREM', KEYS[2], ARGV[2])
  return false
end
return v
`)

var setScript = goredis.NewScript(intLua + putLua + `
put()
return 1
`)

// Returns {1} when stored, {0, previous} otherwise.
var setNXScript = goredis.NewScript(intLua + touchLua + putLua + `
local prev = touch(tonumber(ARGV[2]), ARGV[5])
if prev then return {0, prev} end
put()
return {1}
`)

// ARGV: member
var delScript = goredis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// KEYS[1]=index; ARGV: now, entry prefix.
// Entry keys share the index's hash tag, so they live in the same slot.
var clearScript = goredis.NewScript(intLua + `
prune(KEYS[1], tonumber(ARGV[1]))
local members = redis.call('ZRANGE', KEYS[1], 0, -1)
for i = 1, #members do
  redis.call('DEL', ARGV[2] .. members[i])
end
redis.call('DEL', KEYS[1])
return #members
`)

// Lock scripts: KEYS[1]=lock key, ARGV[1]=token.

// ARGV: token, channel, member
var unlockScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('PUBLISH', ARGV[2], ARGV[3])
  return 1
end
return 0
`)

// ARGV: token, lease ms
var renewScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)
