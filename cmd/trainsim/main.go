package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/danielpatrickdp/adaptive-training/internal/batch"
	"github.com/danielpatrickdp/adaptive-training/internal/checkpoint"
	"github.com/danielpatrickdp/adaptive-training/internal/gradient"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
	"github.com/danielpatrickdp/adaptive-training/internal/session"
)

// #region main
func main() {
	epochs := flag.Int("epochs", 50, "maximum epochs to simulate")
	stepsPerEpoch := flag.Int("steps", 20, "training steps per epoch")
	seed := flag.Int64("seed", 42, "simulation RNG seed")
	policy := flag.String("lr-policy", "cosine", "learning-rate policy (cosine|plateau|exponential|polynomial|cyclical)")
	flag.Parse()

	dbPath := envOr("TRAINING_DB", "training_runs.db")

	store, err := checkpoint.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	cfg := session.DefaultConfig()
	cfg.LR.Policy = lrate.Policy(*policy)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	model := newSimModel(*seed)
	sess, err := session.New(cfg, session.WithStore(store), session.WithModel(model))
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}

	fmt.Printf("Training simulator ready. session=%s db=%s policy=%s\n", sess.ID(), dbPath, *policy)

	for epoch := 0; epoch < *epochs; epoch++ {
		var epochLoss float64
		for step := 0; step < *stepsPerEpoch; step++ {
			grads, loss := model.trainStep(epoch, step)
			epochLoss += loss

			plan := sess.Step(grads, metrics.StepMetrics{Loss: loss, Epoch: epoch})
			if !plan.Pending {
				model.applyGradients(plan.Gradients, plan.LR)
			}

			sess.ObserveBatch(batch.BatchMetrics{
				BatchSize:        plan.BatchSize,
				ProcessingTimeMs: model.simBatchTimeMs(plan.BatchSize),
				MemoryUsageMB:    model.simMemoryMB(plan.BatchSize),
				Throughput:       float64(plan.BatchSize) / (model.simBatchTimeMs(plan.BatchSize) / 1000),
			})
		}

		epochLoss /= float64(*stepsPerEpoch)
		valLoss := model.validate(epoch)
		stopped := sess.EndEpoch(metrics.StepMetrics{
			Loss:    epochLoss,
			ValLoss: &valLoss,
			Epoch:   epoch,
		})

		fmt.Printf("epoch %3d  loss=%.4f  val_loss=%.4f  lr=%.6f  batch=%d\n",
			epoch, epochLoss, valLoss, sess.Rates().Rate(), sess.Batches().BatchSize())

		if stopped {
			st := sess.Stopper().State()
			fmt.Printf("stopped at epoch %d: %s (best epoch %d, best %s=%.4f)\n",
				epoch, st.StopReason, st.BestEpoch, cfg.Stop.Monitor, st.BestMetric)
			break
		}
	}

	report := sess.Gradients().Analyze()
	fmt.Printf("gradient health: %.2f pattern=%s\n", report.HealthScore, report.FlowPattern)
	for _, rec := range report.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}
}

// #endregion main

// #region sim-model

// simModel is a toy quadratic-bowl model: the loss decays toward a floor as
// weights shrink, with seeded noise so runs are reproducible.
type simModel struct {
	weights map[string][]float32
	rng     *rand.Rand
}

func newSimModel(seed int64) *simModel {
	rng := rand.New(rand.NewSource(seed))
	weights := map[string][]float32{
		"layer0.w": randomSlice(rng, 64),
		"layer0.b": randomSlice(rng, 8),
		"layer1.w": randomSlice(rng, 32),
	}
	return &simModel{weights: weights, rng: rng}
}

func randomSlice(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out
}

// trainStep returns synthetic gradients proportional to the weights (the
// gradient of 0.5*||w||^2) plus noise, and the corresponding loss.
func (m *simModel) trainStep(epoch, step int) (gradient.Buffers, float64) {
	grads := make(gradient.Buffers, len(m.weights))
	var loss float64
	for name, w := range m.weights {
		g := make([]float32, len(w))
		for i, v := range w {
			g[i] = v + float32(m.rng.NormFloat64()*0.05)
			loss += 0.5 * float64(v) * float64(v)
		}
		rank := 1
		if len(w) > 16 {
			rank = 2
		}
		grads[name] = gradient.Buffer{Data: g, Rank: rank}
	}
	return grads, loss/128 + 0.05
}

func (m *simModel) applyGradients(grads gradient.Buffers, lr float64) {
	for name, g := range grads {
		w := m.weights[name]
		for i := range w {
			w[i] -= float32(lr) * g.Data[i]
		}
	}
}

// validate returns a noisy copy of the training loss shifted up slightly.
func (m *simModel) validate(epoch int) float64 {
	var loss float64
	for _, w := range m.weights {
		for _, v := range w {
			loss += 0.5 * float64(v) * float64(v)
		}
	}
	return loss/128 + 0.06 + math.Abs(m.rng.NormFloat64())*0.01
}

func (m *simModel) simBatchTimeMs(size int) float64 {
	return float64(size)*1.5 + m.rng.Float64()*5
}

func (m *simModel) simMemoryMB(size int) float64 {
	return 256 + float64(size)*12
}

// Weights implements earlystop.WeightSource.
func (m *simModel) Weights() map[string][]float32 {
	out := make(map[string][]float32, len(m.weights))
	for name, w := range m.weights {
		out[name] = append([]float32(nil), w...)
	}
	return out
}

// SetWeights implements earlystop.WeightSource.
func (m *simModel) SetWeights(w map[string][]float32) {
	for name, vals := range w {
		m.weights[name] = append([]float32(nil), vals...)
	}
}

// #endregion sim-model

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
