package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var limiterValidate = validator.New()

// LimitConfig bounds a single execution's resource consumption. Field
// defaults mirror the "default" preset and are applied via
// creasty/defaults; validate tags are checked when a preset is built
// and by ValidateLimitConfig. NewResourceLimiter does not validate the
// config it is given.
type LimitConfig struct {
	MaxExecutionTimeMs int64 `default:"30000" validate:"gt=0"`
	MaxSteps           int   `default:"10000" validate:"gt=0"`
	MaxContextBytes    int64 `default:"10485760" validate:"gt=0"` // 10 MiB
	MaxAuditEntries    int   `default:"10000" validate:"gt=0"`
	MaxDepth           int   `default:"100" validate:"gt=0"`
	MaxBranches        int   `default:"10" validate:"gt=0"`
	MaxVariables       int   `default:"1000" validate:"gt=0"`
	MaxVariableBytes   int64 `default:"1048576" validate:"gt=0"` // 1 MiB per variable
}

// DefaultLimitConfig returns the "default" preset.
func DefaultLimitConfig() LimitConfig {
	cfg := LimitConfig{}
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("limiter: failed to apply defaults: %v", err))
	}
	if err := limiterValidate.Struct(&cfg); err != nil {
		panic(fmt.Sprintf("limiter: default preset failed validation: %v", err))
	}
	return cfg
}

// PermissiveLimitConfig returns the "permissive" preset: 5x the default.
func PermissiveLimitConfig() LimitConfig {
	return scaleLimitConfig(DefaultLimitConfig(), 5)
}

// RestrictiveLimitConfig returns the "restrictive" preset: 1/10th of the
// default.
func RestrictiveLimitConfig() LimitConfig {
	return scaleLimitConfig(DefaultLimitConfig(), 0.1)
}

func scaleLimitConfig(base LimitConfig, factor float64) LimitConfig {
	scaled := LimitConfig{
		MaxExecutionTimeMs: scaleInt64(base.MaxExecutionTimeMs, factor),
		MaxSteps:           scaleInt(base.MaxSteps, factor),
		MaxContextBytes:    scaleInt64(base.MaxContextBytes, factor),
		MaxAuditEntries:    scaleInt(base.MaxAuditEntries, factor),
		MaxDepth:           scaleInt(base.MaxDepth, factor),
		MaxBranches:        scaleInt(base.MaxBranches, factor),
		MaxVariables:       scaleInt(base.MaxVariables, factor),
		MaxVariableBytes:   scaleInt64(base.MaxVariableBytes, factor),
	}
	if err := limiterValidate.Struct(&scaled); err != nil {
		panic(fmt.Sprintf("limiter: scaled preset failed validation: %v", err))
	}
	return scaled
}

func scaleInt(v int, factor float64) int {
	scaled := int(float64(v) * factor)
	if scaled < 1 {
		return 1
	}
	return scaled
}

func scaleInt64(v int64, factor float64) int64 {
	scaled := int64(float64(v) * factor)
	if scaled < 1 {
		return 1
	}
	return scaled
}

// ValidateLimitConfig checks a caller-supplied LimitConfig against its
// validate tags (all fields must be positive).
func ValidateLimitConfig(cfg LimitConfig) error {
	if err := limiterValidate.Struct(&cfg); err != nil {
		return fmt.Errorf("invalid LimitConfig: %w", err)
	}
	return nil
}

// executionCounters is the mutable per-executionId state tracked by
// ResourceLimiter.
type executionCounters struct {
	startedAt        time.Time
	steps            int
	contextSize      int64
	peakContextSize  int64
	auditEntries     int
	depth            int
	peakDepth        int
	branches         int
	variables        int
}

// ResourceLimiter tracks and enforces per-execution quotas. It is the
// one object in the engine that is genuinely shared-mutable across
// concurrent FORK branches, so every method synchronizes internally
// with a single mutex.
type ResourceLimiter struct {
	mu       sync.Mutex
	cfg      LimitConfig
	counters map[string]*executionCounters
}

// NewResourceLimiter constructs a limiter enforcing cfg for every
// execution it tracks.
func NewResourceLimiter(cfg LimitConfig) *ResourceLimiter {
	return &ResourceLimiter{cfg: cfg, counters: make(map[string]*executionCounters)}
}

// StartExecution begins tracking executionId. Must be paired with
// EndExecution.
func (r *ResourceLimiter) StartExecution(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[executionID] = &executionCounters{startedAt: time.Now()}
}

// EndExecution removes all tracked state for executionId.
func (r *ResourceLimiter) EndExecution(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counters, executionID)
}

func (r *ResourceLimiter) get(executionID string) (*executionCounters, error) {
	c, ok := r.counters[executionID]
	if !ok {
		return nil, fmt.Errorf("resource limiter: unknown execution %q (StartExecution not called)", executionID)
	}
	return c, nil
}

// RecordStep increments the step counter and fails immediately if
// MaxSteps is exceeded.
func (r *ResourceLimiter) RecordStep(executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return err
	}
	c.steps++
	if c.steps > r.cfg.MaxSteps {
		return limitErr(LimitSteps, fmt.Sprintf("step count %d exceeds max %d", c.steps, r.cfg.MaxSteps))
	}
	return nil
}

// RecordContextSize updates the tracked context size and fails if
// MaxContextBytes is exceeded.
func (r *ResourceLimiter) RecordContextSize(executionID string, bytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return err
	}
	c.contextSize = bytes
	if bytes > c.peakContextSize {
		c.peakContextSize = bytes
	}
	if bytes > r.cfg.MaxContextBytes {
		return limitErr(LimitContext, fmt.Sprintf("context size %d bytes exceeds max %d", bytes, r.cfg.MaxContextBytes))
	}
	return nil
}

// RecordAuditEntry increments the audit-trail length counter.
func (r *ResourceLimiter) RecordAuditEntry(executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return err
	}
	c.auditEntries++
	if c.auditEntries > r.cfg.MaxAuditEntries {
		return limitErr(LimitAudit, fmt.Sprintf("audit trail length %d exceeds max %d", c.auditEntries, r.cfg.MaxAuditEntries))
	}
	return nil
}

// RecordDepth updates the current recursion depth.
func (r *ResourceLimiter) RecordDepth(executionID string, depth int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return err
	}
	c.depth = depth
	if depth > c.peakDepth {
		c.peakDepth = depth
	}
	if depth > r.cfg.MaxDepth {
		return limitErr(LimitDepth, fmt.Sprintf("recursion depth %d exceeds max %d", depth, r.cfg.MaxDepth))
	}
	return nil
}

// RecordParallelBranches records a FORK's branch count.
func (r *ResourceLimiter) RecordParallelBranches(executionID string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return err
	}
	c.branches += n
	if c.branches > r.cfg.MaxBranches {
		return limitErr(LimitBranches, fmt.Sprintf("parallel branch count %d exceeds max %d", c.branches, r.cfg.MaxBranches))
	}
	return nil
}

// RecordVariable registers a write to a named variable, checking both
// the total variable count and that single variable's size.
func (r *ResourceLimiter) RecordVariable(executionID string, count int, valueBytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return err
	}
	c.variables = count
	if count > r.cfg.MaxVariables {
		return limitErr(LimitVariables, fmt.Sprintf("variable count %d exceeds max %d", count, r.cfg.MaxVariables))
	}
	if valueBytes > r.cfg.MaxVariableBytes {
		return limitErr(LimitVariableSize, fmt.Sprintf("variable size %d bytes exceeds max %d", valueBytes, r.cfg.MaxVariableBytes))
	}
	return nil
}

// CheckAll re-evaluates every tracked counter, including elapsed time
// (the only check that can fail purely from the passage of time between
// steps).
func (r *ResourceLimiter) CheckAll(executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return err
	}
	elapsed := time.Since(c.startedAt).Milliseconds()
	if elapsed > r.cfg.MaxExecutionTimeMs {
		return newExecError(ErrTimeoutExceeded, "", fmt.Sprintf("elapsed time %dms exceeds max %dms", elapsed, r.cfg.MaxExecutionTimeMs), nil)
	}
	if c.steps > r.cfg.MaxSteps {
		return limitErr(LimitSteps, fmt.Sprintf("step count %d exceeds max %d", c.steps, r.cfg.MaxSteps))
	}
	if c.contextSize > r.cfg.MaxContextBytes {
		return limitErr(LimitContext, fmt.Sprintf("context size %d bytes exceeds max %d", c.contextSize, r.cfg.MaxContextBytes))
	}
	if c.auditEntries > r.cfg.MaxAuditEntries {
		return limitErr(LimitAudit, fmt.Sprintf("audit trail length %d exceeds max %d", c.auditEntries, r.cfg.MaxAuditEntries))
	}
	if c.depth > r.cfg.MaxDepth {
		return limitErr(LimitDepth, fmt.Sprintf("recursion depth %d exceeds max %d", c.depth, r.cfg.MaxDepth))
	}
	if c.branches > r.cfg.MaxBranches {
		return limitErr(LimitBranches, fmt.Sprintf("parallel branch count %d exceeds max %d", c.branches, r.cfg.MaxBranches))
	}
	if c.variables > r.cfg.MaxVariables {
		return limitErr(LimitVariables, fmt.Sprintf("variable count %d exceeds max %d", c.variables, r.cfg.MaxVariables))
	}
	return nil
}

// Metrics snapshots the current counters for an execution into an
// ExecutionMetrics suitable for embedding in an ExecutionResult.
func (r *ResourceLimiter) Metrics(executionID string) ExecutionMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(executionID)
	if err != nil {
		return ExecutionMetrics{}
	}
	return ExecutionMetrics{
		Steps:           c.steps,
		ElapsedMs:       time.Since(c.startedAt).Milliseconds(),
		PeakContextSize: c.peakContextSize,
		AuditEntries:    c.auditEntries,
	}
}

func limitErr(kind LimitKind, message string) *ExecutionError {
	e := newExecError(ErrResourceLimitExceeded, "", message, nil)
	e.LimitKind = kind
	return e
}
