// Package telemetry publishes registration results to MQTT. A nil client
// disables publishing (useful in tests and offline batch runs), and every
// publish goes to both a per-job topic and a combined topic carrying the
// latest result per job.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/pcreg/registration"
)

// Result is the JSON-serializable telemetry payload for one job.
type Result struct {
	JobID                string    `json:"job_id"`
	Valid                bool      `json:"valid"`
	Rotation             [3][3]float64 `json:"rotation"`
	Translation          [3]float64    `json:"translation"`
	CorrespondenceCount  int       `json:"correspondence_count"`
	PrunedCount          int       `json:"pruned_count"`
	Timestamp            int64     `json:"timestamp"`
}

// Publisher publishes Results to MQTT. A nil client disables publishing.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	results       map[string]*Result
	mu            sync.RWMutex
}

// NewPublisher builds a Publisher. If client is nil, Publish becomes a
// no-op returning nil, so tests and offline batch runs need no broker.
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "pcreg"
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
		results:       make(map[string]*Result),
	}
}

// Publish reports one job's solution. ts is the unix timestamp to stamp
// the result with (the caller supplies it since this package cannot call
// time.Now itself in a deterministic build).
func (p *Publisher) Publish(jobID string, sol registration.RegistrationSolution, corrCount, prunedCount int, ts int64) error {
	if p.client == nil {
		return nil
	}
	if !p.client.IsConnected() {
		return fmt.Errorf("telemetry: MQTT client not connected")
	}

	result := &Result{
		JobID:               jobID,
		Valid:                sol.Valid,
		Rotation:             sol.Rotation,
		Translation:          [3]float64{sol.Translation.X, sol.Translation.Y, sol.Translation.Z},
		CorrespondenceCount:  corrCount,
		PrunedCount:          prunedCount,
		Timestamp:            ts,
	}

	p.mu.Lock()
	p.results[jobID] = result
	p.mu.Unlock()

	if err := p.publishIndividual(result); err != nil {
		log.Printf("telemetry: publishing individual result for %s: %v", jobID, err)
		return err
	}
	return p.publishCombined()
}

func (p *Publisher) publishIndividual(r *Result) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, r.JobID)
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *Publisher) publishCombined() error {
	topic := fmt.Sprintf("%s/results", p.publishPrefix)

	p.mu.RLock()
	snapshot := make(map[string]*Result, len(p.results))
	for k, v := range p.results {
		snapshot[k] = v
	}
	p.mu.RUnlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling combined results: %w", err)
	}
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
