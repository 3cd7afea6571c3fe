package updater

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"urlguard/internal/config"
	"urlguard/internal/repository"
)

const userAgent = "urlguard-updater/1.0"

// Result summarises one source sync.
type Result struct {
	Source      string
	Count       int
	NotModified bool
	Err         error
}

// Client is used for feed downloads; tests may replace it.
var Client = &http.Client{Timeout: 2 * time.Minute}

// Run syncs every source concurrently and returns one Result per source in
// the order given.
func Run(ctx context.Context, db *repository.DomainDB, sources []config.SourceConfig) []Result {
	var wg sync.WaitGroup
	results := make([]Result, len(sources))

	for i, src := range sources {
		wg.Add(1)
		go func(i int, s config.SourceConfig) {
			defer wg.Done()
			results[i] = processSource(ctx, db, s)
		}(i, src)
	}

	wg.Wait()
	return results
}

func processSource(ctx context.Context, db *repository.DomainDB, src config.SourceConfig) Result {
	res := Result{Source: src.Name}
	log.Printf("Checking source: %s (%s)", src.Name, src.Format)

	// Use Name + URL to ensure unique ETag storage keys
	etagKey := src.Name + "_" + src.URL
	currentETag := db.GetETag(etagKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	req.Header.Set("User-Agent", userAgent)
	if currentETag != "" {
		req.Header.Set("If-None-Match", currentETag)
	}

	resp, err := Client.Do(req)
	if err != nil {
		log.Printf("Error fetching %s: %v", src.Name, err)
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		log.Printf("[%s] Up to date.", src.Name)
		res.NotModified = true
		return res
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[%s] Failed with status %d", src.Name, resp.StatusCode)
		res.Err = fmt.Errorf("%s: status %d", src.Name, resp.StatusCode)
		return res
	}

	// Prepare pipeline
	domainChan := make(chan repository.BlockedDomain, 2000)
	doneChan := make(chan Result)

	// DB Consumer: src.Name scopes the mark-and-sweep to this feed
	go func() {
		count, err := db.StreamSync(domainChan, src.Name)
		if err != nil {
			log.Printf("DB Error %s: %v", src.Name, err)
		}
		doneChan <- Result{Source: src.Name, Count: count, Err: err}
	}()

	// Producer: the parser closes domainChan when the body is exhausted
	repository.ParseAndStream(resp.Body, domainChan, src)

	res = <-doneChan
	if res.Err != nil {
		return res
	}
	log.Printf("[%s] Updated. %d rules active.", src.Name, res.Count)

	if newETag := resp.Header.Get("ETag"); newETag != "" {
		if err := db.UpdateETag(etagKey, newETag); err != nil {
			log.Warnf("[%s] Could not store ETag: %v", src.Name, err)
		}
	}
	return res
}
