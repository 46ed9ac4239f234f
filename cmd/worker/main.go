package main

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"wandering-wikipedian/common"
	"wandering-wikipedian/internal/models"
	"wandering-wikipedian/internal/stream"
	"wandering-wikipedian/internal/wiki"
)

type messageReader = stream.MessageReader
type resultWriter = stream.MessageWriter

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Close() error
}

type redisStore struct {
	client *redis.Client
}

func newRedisStore(addr string) *redisStore {
	return &redisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *redisStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

type worker struct {
	reader         messageReader
	store          dedupeStore
	resultsWriter  resultWriter
	edgesWriter    resultWriter
	frontierWriter resultWriter
	dlqWriter      resultWriter
	ttl            time.Duration
	maxDepth       int
	retryMax       int
	retryBase      time.Duration
	retryMaxDelay  time.Duration
	client         *http.Client
	baseURL        string
	concurrentJobs int
	jobTimeout     time.Duration // per-job deadline so one stuck job can't hold a slot forever
	publishTimeout time.Duration // max time for Kafka publish phase so we never block commit path
	commitCh       chan<- kafka.Message
	sem            chan struct{}
	wg             *sync.WaitGroup
	robots         *wiki.RobotsRules // nil = no check (e.g. robots fetch failed at startup)
}

// selectProxyFromPool returns one URL from pool (comma-separated) by hashing hostname.
// Used so each pod picks a deterministic proxy for multi-egress. Empty pool or hostname yields "".
func selectProxyFromPool(pool, hostname string) string {
	parts := strings.Split(strings.TrimSpace(pool), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	var valid []string
	for _, p := range parts {
		if p != "" {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return ""
	}
	if hostname == "" {
		hostname = "0"
	}
	h := fnv.New32a()
	h.Write([]byte(hostname))
	idx := int(h.Sum32()) % len(valid)
	if idx < 0 {
		idx = -idx
	}
	return valid[idx]
}

// metricsProxyURL is the proxy URL this worker uses (set at startup for /metrics proxy label).
var metricsProxyURL string

// Wiki HTTP timeouts so a single hung request doesn't hold a worker slot indefinitely.
const (
	wikiConnectTimeout  = 10 * time.Second
	wikiResponseTimeout = 25 * time.Second // time to first response header
	wikiTotalTimeout    = 30 * time.Second // total request (connect + headers + body)
)

// buildHTTPClient returns an http.Client for MediaWiki API fetches. If PROXY_URL is set,
// uses that proxy; if PROXY_POOL is set (comma-separated URLs), picks one by HOSTNAME
// (e.g. pod name) so replicas spread across proxies for multi-egress / rate-limit bypass.
// Transport uses explicit connect and response-header timeouts so hung requests release the slot.
func buildHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: wikiConnectTimeout}).DialContext,
		ResponseHeaderTimeout: wikiResponseTimeout,
	}
	proxyURL := common.GetEnv("PROXY_URL", "")
	pool := common.GetEnv("PROXY_POOL", "")
	if proxyURL == "" && pool != "" {
		hostname := os.Getenv("HOSTNAME")
		proxyURL = selectProxyFromPool(pool, hostname)
		if proxyURL != "" {
			log.Printf("worker proxy from pool: hostname=%s proxy=%s", hostname, proxyURL)
		}
	}
	metricsProxyURL = proxyURL
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			log.Printf("invalid PROXY_URL/PROXY_POOL: %v", err)
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   wikiTotalTimeout,
	}
}

func newWorker(
	reader messageReader,
	store dedupeStore,
	resultsWriter resultWriter,
	edgesWriter resultWriter,
	frontierWriter resultWriter,
	dlqWriter resultWriter,
	ttl time.Duration,
	maxDepth int,
	retryMax int,
	retryBase time.Duration,
	retryMaxDelay time.Duration,
	client *http.Client,
	baseURL string,
	concurrentJobs int,
	jobTimeout time.Duration,
	publishTimeout time.Duration,
	commitCh chan<- kafka.Message,
	wg *sync.WaitGroup,
	robots *wiki.RobotsRules,
) *worker {
	if baseURL == "" {
		baseURL = wiki.DefaultBaseURL
	}
	if concurrentJobs < 1 {
		concurrentJobs = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	if publishTimeout <= 0 {
		publishTimeout = 90 * time.Second
	}
	// Cap publish timeout so job context can still cancel the publish phase
	if publishTimeout >= jobTimeout {
		publishTimeout = jobTimeout - time.Minute
		if publishTimeout < 30*time.Second {
			publishTimeout = 30 * time.Second
		}
	}
	sem := make(chan struct{}, concurrentJobs)
	return &worker{
		reader:         reader,
		store:          store,
		resultsWriter:  resultsWriter,
		edgesWriter:    edgesWriter,
		frontierWriter: frontierWriter,
		dlqWriter:      dlqWriter,
		ttl:            ttl,
		maxDepth:       maxDepth,
		retryMax:       retryMax,
		retryBase:      retryBase,
		retryMaxDelay:  retryMaxDelay,
		client:         client,
		baseURL:        strings.TrimRight(baseURL, "/"),
		concurrentJobs: concurrentJobs,
		jobTimeout:     jobTimeout,
		publishTimeout: publishTimeout,
		commitCh:       commitCh,
		sem:            sem,
		wg:             wg,
		robots:         robots,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	defaultFrontier := common.GetEnv("KAFKA_TOPIC", "wandering.crawl.frontier")
	groupID := common.GetEnv("KAFKA_GROUP_ID", "wandering-worker")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	dedupeTTL := common.ParseDuration(common.GetEnv("DEDUPE_TTL", "24h"), 24*time.Hour)
	resultsTopic := common.GetEnv("KAFKA_RESULTS_TOPIC", "wandering.crawl.results")
	edgesTopic := common.GetEnv("KAFKA_EDGES_TOPIC", "wandering.graph.edges")
	frontierTopic := common.GetEnv("KAFKA_FRONTIER_TOPIC", defaultFrontier)
	dlqTopic := common.GetEnv("KAFKA_DLQ_TOPIC", "wandering.crawl.dlq")
	baseURL := common.GetEnv("WIKI_BASE_URL", wiki.DefaultBaseURL)
	maxDepth := common.ParseInt(common.GetEnv("MAX_DEPTH", "2"), 2)
	retryMax := common.ParseInt(common.GetEnv("RETRY_MAX", "3"), 3)
	retryBase := common.ParseDuration(common.GetEnv("RETRY_BASE_DELAY", "200ms"), 200*time.Millisecond)
	retryMaxDelay := common.ParseDuration(common.GetEnv("RETRY_MAX_DELAY", "2s"), 2*time.Second)
	concurrentJobs := common.ParseInt(common.GetEnv("CONCURRENT_JOBS", "5"), 5)
	jobTimeout := common.ParseDuration(common.GetEnv("JOB_TIMEOUT", "5m"), 5*time.Minute)
	publishTimeout := common.ParseDuration(common.GetEnv("PUBLISH_TIMEOUT", "90s"), 90*time.Second)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9090")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   frontierTopic,
		GroupID: groupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close reader: %v", err)
		}
	}()

	redisClient := newRedisStore(redisAddr)
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("failed to close redis client: %v", err)
		}
	}()

	resultsWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  resultsTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := resultsWriter.Close(); err != nil {
			log.Printf("failed to close results writer: %v", err)
		}
	}()

	edgesWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  edgesTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := edgesWriter.Close(); err != nil {
			log.Printf("failed to close edges writer: %v", err)
		}
	}()

	frontierWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  frontierTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := frontierWriter.Close(); err != nil {
			log.Printf("failed to close frontier writer: %v", err)
		}
	}()

	dlqWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  dlqTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := dlqWriter.Close(); err != nil {
			log.Printf("failed to close dlq writer: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	commitCh := make(chan kafka.Message, concurrentJobs*2)
	coordinator := newCommitCoordinator(reader, commitCh)
	var coordWg sync.WaitGroup
	coordWg.Add(1)
	go coordinator.run(ctx, &coordWg)

	var wg sync.WaitGroup
	httpClient := buildHTTPClient()
	var robots *wiki.RobotsRules
	if common.ParseBool(common.GetEnv("RESPECT_ROBOTS_TXT", ""), false) {
		robotsCtx, robotsCancel := context.WithTimeout(ctx, 15*time.Second)
		robotsBody, err := wiki.FetchRobots(robotsCtx, httpClient, baseURL)
		robotsCancel()
		if err != nil {
			log.Printf("robots.txt fetch failed (will allow all paths): %v", err)
		} else {
			robots = wiki.ParseRobots(robotsBody, wiki.DefaultUserAgent)
			log.Printf("loaded %s robots.txt (paths disallowed by * will be skipped)", baseURL)
		}
	}
	log.Printf("worker consuming topic=%s group=%s broker=%s wiki=%s concurrent_jobs=%d", frontierTopic, groupID, broker, baseURL, concurrentJobs)
	w := newWorker(
		reader,
		redisClient,
		resultsWriter,
		edgesWriter,
		frontierWriter,
		dlqWriter,
		dedupeTTL,
		maxDepth,
		retryMax,
		retryBase,
		retryMaxDelay,
		httpClient,
		baseURL,
		concurrentJobs,
		jobTimeout,
		publishTimeout,
		commitCh,
		&wg,
		robots,
	)
	w.run(ctx)
	wg.Wait()
	close(commitCh)
	coordWg.Wait()
}

// run consumes messages from the frontier topic, dispatches to worker goroutines
// (bounded by semaphore), and routes commits through the coordinator.
func (w *worker) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := w.dispatchMessage(ctx, msg); err != nil {
			log.Printf("message dispatch error: %v", err)
		}
	}
}

// dispatchMessage parses and dedupes synchronously; spawns a goroutine for fetch+publish.
func (w *worker) dispatchMessage(ctx context.Context, msg kafka.Message) error {
	var job models.CrawlJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		log.Printf("invalid job payload: %v", err)
		w.commitCh <- msg
		return nil
	}

	atomic.AddUint64(&workerJobsReceived, 1)
	dedupeKey := dedupeKeyForJob(job)
	ok, err := w.store.SetNX(ctx, dedupeKey, "1", w.ttl)
	if err != nil {
		return err
	}
	if !ok {
		atomic.AddUint64(&workerJobsSkipped, 1)
		log.Printf("duplicate job skipped key=%s", dedupeKey)
		w.commitCh <- msg
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.sem <- struct{}{}:
	}
	atomic.AddInt64(&workerInFlight, 1)
	w.wg.Add(1)
	go w.processJobAsync(ctx, msg, job)
	return nil
}

// processJobAsync fetches, publishes, and commits; runs in a worker goroutine.
// Uses a per-job context with timeout so one stuck job can't hold the slot forever.
// Defers sending msg to commitCh so the partition advances even on panic or timeout.
func (w *worker) processJobAsync(ctx context.Context, msg kafka.Message, job models.CrawlJob) {
	// Always release slot and signal commit so one bad job doesn't block the partition.
	defer func() {
		atomic.AddInt64(&workerInFlight, -1)
		<-w.sem
		w.wg.Done()
		w.commitCh <- msg
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	log.Printf("received job session=%s title=%q depth=%d partition=%d offset=%d", job.SessionID, job.Title, job.Depth, msg.Partition, msg.Offset)
	article, err := w.handleJobWithRetry(jobCtx, job)
	if err != nil {
		atomic.AddUint64(&workerJobsFailed, 1)
		log.Printf("job handler error: %v", err)
	}

	// Bounded publish phase so a stuck Kafka write never blocks the commit path (avoids stuck partition).
	publishCtx, publishCancel := context.WithTimeout(jobCtx, w.publishTimeout)
	defer publishCancel()
	log.Printf("publish start partition=%d offset=%d", msg.Partition, msg.Offset)

	if err != nil {
		if dlqErr := w.publishDLQ(publishCtx, job, err); dlqErr != nil {
			log.Printf("dlq publish error: %v", dlqErr)
		}
	} else {
		atomic.AddUint64(&workerJobsSuccess, 1)
	}
	if publishCtx.Err() != nil {
		log.Printf("publish timeout partition=%d offset=%d (advancing to avoid stuck partition)", msg.Partition, msg.Offset)
		return
	}
	if err := w.publishResult(publishCtx, job, article); err != nil {
		log.Printf("publish result error: %v", err)
	}
	if publishCtx.Err() != nil {
		log.Printf("publish timeout partition=%d offset=%d (advancing to avoid stuck partition)", msg.Partition, msg.Offset)
		return
	}
	if err := w.publishEdgesAndFrontier(publishCtx, job, article); err != nil {
		log.Printf("edge/frontier error: %v", err)
	}
	if publishCtx.Err() != nil {
		log.Printf("publish timeout partition=%d offset=%d (advancing to avoid stuck partition)", msg.Partition, msg.Offset)
	}
	log.Printf("publish done partition=%d offset=%d", msg.Partition, msg.Offset)
}

// handleJob fetches the article's outbound links from the MediaWiki API.
// Returns the parsed article; a missing page comes back with Exists=false.
func handleJob(ctx context.Context, client *http.Client, baseURL string, job models.CrawlJob, robots *wiki.RobotsRules) (models.Article, error) {
	if strings.TrimSpace(job.Title) == "" {
		return models.Article{}, fmt.Errorf("empty title in job session=%s", job.SessionID)
	}
	if robots != nil && !robots.Allowed(wiki.APIPath) {
		return models.Article{}, fmt.Errorf("robots.txt disallows path %s", wiki.APIPath)
	}
	fetchURL := wiki.LinksURL(baseURL, job.Title)
	body, err := fetchJSONWithMetrics(ctx, client, fetchURL)
	if err != nil {
		return models.Article{}, err
	}
	article, err := wiki.ParseArticle(body)
	if err != nil {
		return models.Article{}, err
	}
	log.Printf("crawled session=%s title=%q exists=%t links=%d depth=%d", job.SessionID, article.Title, article.Exists, article.NumLinks, job.Depth)
	return article, nil
}

func (w *worker) handleJobWithRetry(ctx context.Context, job models.CrawlJob) (models.Article, error) {
	if w.retryMax <= 0 {
		return handleJob(ctx, w.client, w.baseURL, job, w.robots)
	}
	delay := w.retryBase
	attempts := 0
	for {
		article, err := handleJob(ctx, w.client, w.baseURL, job, w.robots)
		if err == nil {
			return article, nil
		}
		attempts++
		if attempts > w.retryMax {
			return models.Article{}, err
		}
		if delay > 0 {
			if w.retryMaxDelay > 0 && delay > w.retryMaxDelay {
				delay = w.retryMaxDelay
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return models.Article{}, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}
}

func (w *worker) publishResult(ctx context.Context, job models.CrawlJob, article models.Article) error {
	if w.resultsWriter == nil || article.Title == "" {
		return nil
	}

	payload, err := models.NewCrawlResult(job, article)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return w.resultsWriter.WriteMessages(ctx, msg)
}

func (w *worker) publishDLQ(ctx context.Context, job models.CrawlJob, jobErr error) error {
	if w.dlqWriter == nil {
		return nil
	}
	payload, err := json.Marshal(models.CrawlFailure{
		SessionID: job.SessionID,
		SeedTitle: job.SeedTitle,
		Title:     job.Title,
		Depth:     job.Depth,
		Error:     jobErr.Error(),
		FailedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return w.dlqWriter.WriteMessages(ctx, msg)
}

// publishEdgesAndFrontier records one edge per outbound link and re-enqueues
// regular-namespace link targets while the depth budget allows. Template,
// category, and portal pages still get edges so the graph keeps them, but
// they are not followed; hub pages like those would explode the frontier.
func (w *worker) publishEdgesAndFrontier(ctx context.Context, job models.CrawlJob, article models.Article) error {
	if !article.Exists {
		return nil
	}
	for _, link := range article.Links {
		if err := w.publishEdge(ctx, job, article.Title, link, "links_to"); err != nil {
			return err
		}
		if models.ClassifyTitle(link) != models.ArticleTypeRegular {
			continue
		}
		if err := w.enqueueTitleToFrontier(ctx, job, link); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) enqueueTitleToFrontier(ctx context.Context, job models.CrawlJob, title string) error {
	if w.frontierWriter == nil {
		return nil
	}
	if w.maxDepth > 0 && job.Depth >= w.maxDepth {
		return nil
	}
	next := models.CrawlJob{
		SessionID: job.SessionID,
		SeedTitle: job.SeedTitle,
		Title:     title,
		Depth:     job.Depth + 1,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return w.frontierWriter.WriteMessages(ctx, msg)
}

func (w *worker) publishEdge(ctx context.Context, job models.CrawlJob, from, to, relation string) error {
	if w.edgesWriter == nil {
		return nil
	}
	edge := models.Edge{
		SessionID: job.SessionID,
		From:      from,
		To:        to,
		Relation:  relation,
	}
	payload, err := json.Marshal(edge)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return w.edgesWriter.WriteMessages(ctx, msg)
}

// dedupeKeyForJob namespaces visited keys by article class so a category page
// and a same-named article don't collide.
func dedupeKeyForJob(job models.CrawlJob) string {
	return "visited:" + string(models.ClassifyTitle(job.Title)) + ":" + job.Title
}
