// Пакет cache — процессный TTL-кэш результатов чтения слоя хранения.
// Каждая запись имеет собственный TTL и вытесняется лениво при чтении.
// Ключи структурированы (namespace, user, qualifier), массовая инвалидация —
// по структурному префиксу или по регулярному выражению.
// Хранилище — hashicorp/golang-lru/v2 (ограничение по числу записей).
package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_cache_hits_total",
		Help: "Общее количество попаданий в TTL-кэш.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_cache_misses_total",
		Help: "Общее количество промахов TTL-кэша (включая истёкшие записи).",
	})
	cacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_cache_invalidated_entries_total",
		Help: "Общее количество записей, удалённых инвалидацией.",
	})
)

// DefaultTTL — время жизни записи, если вызывающий не задал своё.
const DefaultTTL = 5 * time.Minute

// keySep — разделитель сегментов ключа.
const keySep = ":"

// Key — структурированный ключ кэша.
type Key struct {
	// Namespace — тип записи (meals, settings, profile)
	Namespace string
	// UserID — владелец данных
	UserID string
	// Qualifier — уточнение (list, lite, date:2024-01-01, image:<id>, ...)
	Qualifier string
}

// String возвращает строковое представление ключа: namespace:user:qualifier.
func (k Key) String() string {
	return k.Namespace + keySep + k.UserID + keySep + k.Qualifier
}

// prefix — префикс всех ключей пространства имён пользователя.
func (k Key) prefix() string {
	return k.Namespace + keySep + k.UserID + keySep
}

// entry — значение с моментом создания и TTL.
type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
}

// expired — запись не выдаётся, если now − created ≥ TTL.
func (e entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// Option — опция конструктора кэша.
type Option func(*Cache)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithDefaultTTL задаёт TTL по умолчанию.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// Cache — TTL-кэш с ленивым вытеснением.
// Создаётся при старте и передаётся всем потребителям явно.
type Cache struct {
	items      *lru.Cache[string, entry]
	defaultTTL time.Duration
	now        func() time.Time

	// genMu защищает счётчики поколений.
	genMu sync.Mutex
	// gens — поколение пространства имён пользователя (ключ — префикс).
	gens map[string]uint64
	// epoch — общее поколение; растёт при Clear и InvalidatePattern.
	epoch uint64
}

// New создаёт кэш на maxEntries записей.
func New(maxEntries int, opts ...Option) (*Cache, error) {
	items, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		items:      items,
		defaultTTL: DefaultTTL,
		now:        time.Now,
		gens:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get возвращает значение по ключу. Истёкшая запись удаляется и не выдаётся.
func (c *Cache) Get(key Key) (any, bool) {
	k := key.String()
	e, ok := c.items.Get(k)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	if e.expired(c.now()) {
		c.items.Remove(k)
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return e.value, true
}

// Set записывает значение, всегда перезаписывая и обнуляя возраст.
// ttl <= 0 означает TTL по умолчанию.
func (c *Cache) Set(key Key, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.items.Add(key.String(), entry{value: value, createdAt: c.now(), ttl: ttl})
}

// Generation возвращает текущее поколение пространства имён пользователя.
// Значение строго растёт при каждой инвалидации, затрагивающей это
// пространство имён (InvalidateNamespace, InvalidatePattern, Clear).
func (c *Cache) Generation(namespace, userID string) uint64 {
	prefix := Key{Namespace: namespace, UserID: userID}.prefix()
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.epoch + c.gens[prefix]
}

// SetIfGeneration записывает значение, только если поколение пространства
// имён ключа не изменилось с момента gen. Возвращает false, если запись
// пропущена: значение загружено до инвалидации и уже устарело.
func (c *Cache) SetIfGeneration(key Key, value any, ttl time.Duration, gen uint64) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.epoch+c.gens[key.prefix()] != gen {
		return false
	}
	c.items.Add(key.String(), entry{value: value, createdAt: c.now(), ttl: ttl})
	return true
}

// Has сообщает, есть ли по ключу неистёкшая запись. Не влияет на порядок LRU.
func (c *Cache) Has(key Key) bool {
	k := key.String()
	e, ok := c.items.Peek(k)
	if !ok {
		return false
	}
	if e.expired(c.now()) {
		c.items.Remove(k)
		return false
	}
	return true
}

// Invalidate удаляет одну запись.
func (c *Cache) Invalidate(key Key) {
	if c.items.Remove(key.String()) {
		cacheInvalidationsTotal.Inc()
	}
}

// InvalidateNamespace удаляет все записи пространства имён пользователя
// (все ключи с префиксом namespace:user:). Возвращает число удалённых записей.
func (c *Cache) InvalidateNamespace(namespace, userID string) int {
	prefix := Key{Namespace: namespace, UserID: userID}.prefix()
	c.genMu.Lock()
	c.gens[prefix]++
	c.genMu.Unlock()
	return c.removeMatching(func(k string) bool {
		return strings.HasPrefix(k, prefix)
	})
}

// InvalidatePattern удаляет все записи, строковый ключ которых
// соответствует регулярному выражению, за один проход.
func (c *Cache) InvalidatePattern(re *regexp.Regexp) int {
	c.bumpEpoch()
	return c.removeMatching(re.MatchString)
}

// Clear удаляет все записи.
func (c *Cache) Clear() {
	c.bumpEpoch()
	c.items.Purge()
}

// bumpEpoch сдвигает поколение всех пространств имён.
// Вызывается до удаления записей: SetIfGeneration после сдвига уже не
// запишет значение, загруженное до него.
func (c *Cache) bumpEpoch() {
	c.genMu.Lock()
	c.epoch++
	c.genMu.Unlock()
}

// Len возвращает число записей (включая ещё не вытесненные истёкшие).
func (c *Cache) Len() int {
	return c.items.Len()
}

func (c *Cache) removeMatching(match func(string) bool) int {
	removed := 0
	for _, k := range c.items.Keys() {
		if match(k) && c.items.Remove(k) {
			removed++
		}
	}
	cacheInvalidationsTotal.Add(float64(removed))
	return removed
}

// GetAs — типизированная обёртка над Get.
// Значение другого типа считается промахом.
func GetAs[T any](c *Cache, key Key) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
