// cmd/camwatch-probe/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"camwatch/internal/config"
	"camwatch/internal/history"
	"camwatch/internal/snapshot"
)

type probeResult struct {
	Host    config.HostConfig
	Failing []string
	Err     error
	Elapsed time.Duration
}

func main() {
	var (
		configFile  = flag.String("config", "", "Probe the hosts of an existing configuration file")
		provider    = flag.String("provider", "html", "Snapshot provider: html or stats")
		timeout     = flag.Duration("timeout", 60*time.Second, "Timeout per dashboard")
		failureText = flag.String("failure-text", "No frames have been received", "Text shown on cameras without frames")
		parallel    = flag.Int("parallel", 4, "Dashboards probed at once")
		output      = flag.String("output", "", "Write reachable dashboards as a hosts include file")
		disabled    = flag.Bool("disabled", false, "Mark written hosts as disabled")
	)
	flag.Parse()

	hosts, err := targets(*configFile, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
	if len(hosts) == 0 {
		log.Fatal("No dashboards to probe. Pass addresses as arguments or use -config.")
	}

	p, err := snapshot.New(*provider, &http.Client{}, snapshot.Options{
		Timeout:     *timeout,
		FailureText: *failureText,
		UserAgent:   "camwatch-probe/1.0",
	})
	if err != nil {
		log.Fatal(err)
	}

	results := probe(context.Background(), p, hosts, *parallel)
	printResults(results)

	if *output != "" {
		if err := writeHosts(results, *output, !*disabled); err != nil {
			log.Fatalf("Failed to write hosts: %v", err)
		}
		fmt.Printf("\nHosts written to: %s\n", *output)
	}
}

func targets(configFile string, args []string) ([]config.HostConfig, error) {
	var hosts []config.HostConfig
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		hosts = append(hosts, cfg.Hosts...)
	}

	seen := map[string]bool{}
	for _, h := range hosts {
		seen[h.ID] = true
	}
	for _, arg := range args {
		h, err := hostFromAddress(arg)
		if err != nil {
			return nil, err
		}
		for base, n := h.ID, 2; seen[h.ID]; n++ {
			h.ID = fmt.Sprintf("%s-%d", base, n)
		}
		seen[h.ID] = true
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// hostFromAddress derives a host entry from a dashboard URL.
func hostFromAddress(address string) (config.HostConfig, error) {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil || u.Hostname() == "" {
		return config.HostConfig{}, fmt.Errorf("invalid dashboard address %q", address)
	}
	return config.HostConfig{
		ID:      generateHostID(u.Hostname(), u.Port()),
		Name:    u.Hostname(),
		Address: strings.TrimSuffix(u.String(), "/"),
	}, nil
}

func generateHostID(hostname, port string) string {
	id := hostname
	if !isIP(hostname) {
		id = strings.Split(hostname, ".")[0]
	}
	id = strings.ToLower(strings.NewReplacer(".", "-", ":", "-").Replace(id))
	if port != "" && port != "80" && port != "443" && port != "5000" {
		id += "-" + port
	}
	return id
}

func isIP(s string) bool {
	return strings.Trim(s, "0123456789.") == "" || strings.Contains(s, ":")
}

func probe(ctx context.Context, p snapshot.Provider, hosts []config.HostConfig, parallel int) []probeResult {
	results := make([]probeResult, len(hosts))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, h := range hosts {
		i, h := i, h
		g.Go(func() error {
			start := time.Now()
			snap, err := p.Snapshot(ctx, h.Address)
			res := probeResult{Host: h, Err: err, Elapsed: time.Since(start)}
			if err == nil {
				res.Failing = history.SortCameraIDs(snap.Failing)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printResults(results []probeResult) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Printf("%-20s ERROR   %v\n", r.Host.ID, r.Err)
		case len(r.Failing) == 0:
			fmt.Printf("%-20s OK      all cameras receiving frames (%s)\n", r.Host.ID, r.Elapsed.Round(time.Millisecond))
		default:
			fmt.Printf("%-20s FAILING %d: %s (%s)\n", r.Host.ID, len(r.Failing), strings.Join(r.Failing, ", "), r.Elapsed.Round(time.Millisecond))
		}
	}
}

func reachableHosts(results []probeResult, enabled bool) []config.HostConfig {
	var hosts []config.HostConfig
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		h := r.Host
		e := enabled
		h.Enabled = &e
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts
}

func writeHosts(results []probeResult, filename string, enabled bool) error {
	partial := config.PartialConfig{Hosts: reachableHosts(results, enabled)}
	data, err := yaml.Marshal(&partial)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	header := fmt.Sprintf("# camwatch hosts\n# Generated by camwatch-probe on %s\n# Contains %d hosts\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(partial.Hosts))

	if err := os.WriteFile(filename, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
