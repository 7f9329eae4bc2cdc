// Command shadow_compare dispatches the same action payloads against the
// routing gateway and the legacy WordPress bridge and reports result
// differences. Run it before raising a rollout fraction.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Action   string                 `json:"action"`
	Payload  map[string]interface{} `json:"payload"`
	Critical bool                   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target         target
	LegacyStatus   int
	GatewayStatus  int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGW     time.Duration
	DurationLegacy time.Duration
}

func main() {
	var (
		gatewayBase string
		legacyBase  string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&gatewayBase, "gateway-base", "http://localhost:8080/api/v1/route", "Gateway dispatch base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:8000/wp-json/moneyquiz/v1/route", "Legacy bridge base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range targets {
		comp := compareTarget(client, gatewayBase, legacyBase, t)
		if comp.Error != nil {
			if t.Critical {
				breaking++
			}
		} else {
			if !comp.StatusMatch || !comp.BodyMatch {
				if t.Critical {
					breaking++
				} else {
					optionalDiff++
				}
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func compareTarget(client *http.Client, gatewayBase, legacyBase string, tgt target) comparison {
	comp := comparison{Target: tgt}
	gwResp, gwDur, gwErr := dispatch(client, gatewayBase, tgt)
	legacyResp, legacyDur, legacyErr := dispatch(client, legacyBase, tgt)
	comp.DurationGW = gwDur
	comp.DurationLegacy = legacyDur

	if gwErr != nil {
		comp.Error = fmt.Errorf("gateway dispatch failed: %w", gwErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy dispatch failed: %w", legacyErr)
		return comp
	}

	comp.GatewayStatus = gwResp.StatusCode
	comp.LegacyStatus = legacyResp.StatusCode
	comp.StatusMatch = comp.GatewayStatus == comp.LegacyStatus

	defer gwResp.Body.Close()
	defer legacyResp.Body.Close()

	gwBody, err := io.ReadAll(gwResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read gateway body: %w", err)
		return comp
	}
	legacyBody, err := io.ReadAll(legacyResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read legacy body: %w", err)
		return comp
	}

	comp.BodyMatch = bodiesEqual(gwBody, legacyBody)

	return comp
}

func dispatch(client *http.Client, base string, tgt target) (*http.Response, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	action := strings.TrimSpace(tgt.Action)
	if action == "" {
		return nil, 0, errors.New("empty action")
	}
	url := strings.TrimRight(base, "/") + "/" + action

	payload := tgt.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	stripRoutingMeta(&aj)
	stripRoutingMeta(&bj)
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

// stripRoutingMeta removes fields the gateway adds on top of the handler
// result so only the business payload is compared.
func stripRoutingMeta(v *interface{}) {
	if m, ok := (*v).(map[string]interface{}); ok {
		delete(m, "_meta")
		delete(m, "system")
	}
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []comparison) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s\n", status, res.Target.Action)
		fmt.Printf("  Gateway Status: %d (%s)\n", res.GatewayStatus, res.DurationGW)
		fmt.Printf("  Legacy Status: %d (%s)\n", res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
