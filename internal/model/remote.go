package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// Full method names served by the model service. Messages are
// google.protobuf.Struct on both sides.
const (
	FitMethod     = "/eventseq.model.v1.ModelService/Fit"
	PredictMethod = "/eventseq.model.v1.ModelService/Predict"
)

// ErrNotTrained is returned when a remote model has no checkpoint yet.
var ErrNotTrained = errors.New("model has not been trained")

// #region remote-struct
// Remote delegates training and inference to an external model service.
// The service owns the weights; Remote only tracks the checkpoint id.
type Remote struct {
	conn       grpc.ClientConnInterface
	cc         *grpc.ClientConn // nil when the connection was injected
	spec       Spec
	timeout    time.Duration
	checkpoint string
}

// #endregion remote-struct

// #region constructor
// NewRemote connects to the model service at addr.
func NewRemote(addr string, spec Spec, timeout time.Duration) (*Remote, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Remote{conn: cc, cc: cc, spec: cloneSpec(spec), timeout: timeout}, nil
}

// NewRemoteWithConn creates a Remote over an existing connection.
// Used for testing without a real gRPC server.
func NewRemoteWithConn(conn grpc.ClientConnInterface, spec Spec, timeout time.Duration) (*Remote, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	return &Remote{conn: conn, spec: cloneSpec(spec), timeout: timeout}, nil
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if Remote dialed it.
func (r *Remote) Close() error {
	if r.cc == nil {
		return nil
	}
	return r.cc.Close()
}

// #endregion close

func (r *Remote) Spec() Spec { return cloneSpec(r.spec) }

func (r *Remote) Snapshot() Snapshot {
	return Snapshot{Backend: BackendRemote, Spec: r.Spec(), Checkpoint: r.checkpoint}
}

// #region fit
// Fit sends both batches to the service. Training continues from the
// current checkpoint when there is one. Per-epoch history returned by the
// service is replayed through OnEpochEnd after the call completes.
func (r *Remote) Fit(ctx context.Context, train, validation dataset.Batch, opts FitOptions) (FitResult, error) {
	if err := validateOptions(opts); err != nil {
		return FitResult{}, err
	}
	if train.Len() == 0 {
		return FitResult{}, errors.New("fit: empty training batch")
	}
	if err := r.spec.CheckBatch(train.Inputs, train.Outputs); err != nil {
		return FitResult{}, fmt.Errorf("fit: training batch: %w", err)
	}
	req := map[string]any{
		"spec":              specValue(r.spec),
		"train":             batchValue(train),
		"parent_checkpoint": r.checkpoint,
		"options": map[string]any{
			"epochs":        opts.Epochs,
			"batch_size":    opts.BatchSize,
			"learning_rate": opts.LearningRate,
			"seed":          float64(opts.Seed),
		},
	}
	if validation.Len() > 0 {
		if err := r.spec.CheckBatch(validation.Inputs, validation.Outputs); err != nil {
			return FitResult{}, fmt.Errorf("fit: validation batch: %w", err)
		}
		req["validation"] = batchValue(validation)
	}

	resp, err := r.invoke(ctx, FitMethod, req)
	if err != nil {
		return FitResult{}, fmt.Errorf("fit rpc: %w", err)
	}
	fields := resp.GetFields()
	checkpoint := fields["checkpoint"].GetStringValue()
	if checkpoint == "" {
		return FitResult{}, errors.New("fit rpc: response carries no checkpoint")
	}
	r.checkpoint = checkpoint

	_, hasVal := fields["val_loss"]
	res := FitResult{
		Epochs:     int(fields["epochs"].GetNumberValue()),
		Loss:       fields["loss"].GetNumberValue(),
		ValLoss:    fields["val_loss"].GetNumberValue(),
		HasVal:     hasVal,
		Checkpoint: checkpoint,
	}
	if opts.OnEpochEnd != nil {
		for _, v := range fields["history"].GetListValue().GetValues() {
			h := v.GetStructValue().GetFields()
			_, ok := h["val_loss"]
			opts.OnEpochEnd(EpochLog{
				Epoch:   int(h["epoch"].GetNumberValue()),
				Loss:    h["loss"].GetNumberValue(),
				ValLoss: h["val_loss"].GetNumberValue(),
				HasVal:  ok,
			})
		}
	}
	return res, nil
}

// #endregion fit

// #region predict
// Predict runs inference on the current checkpoint.
func (r *Remote) Predict(ctx context.Context, inputs encoding.Tensor) (encoding.Tensor, error) {
	if r.checkpoint == "" {
		return encoding.Tensor{}, ErrNotTrained
	}
	if err := r.spec.CheckBatch(inputs, encoding.Tensor{}); err != nil {
		return encoding.Tensor{}, fmt.Errorf("predict: %w", err)
	}
	resp, err := r.invoke(ctx, PredictMethod, map[string]any{
		"checkpoint": r.checkpoint,
		"inputs":     tensorValue(inputs),
	})
	if err != nil {
		return encoding.Tensor{}, fmt.Errorf("predict rpc: %w", err)
	}
	out, err := tensorFrom(resp.GetFields()["outputs"])
	if err != nil {
		return encoding.Tensor{}, fmt.Errorf("predict rpc: outputs: %w", err)
	}
	if out.Rows() != inputs.Rows() || out.RowSize() != r.spec.OutputWidth {
		return encoding.Tensor{}, fmt.Errorf("predict rpc: %w: got %v, want [%d %d]",
			encoding.ErrShapeMismatch, out.Shape, inputs.Rows(), r.spec.OutputWidth)
	}
	return out, nil
}

// #endregion predict

// #region wire
func (r *Remote) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func specValue(s Spec) map[string]any {
	shape := make([]any, len(s.InputShape))
	for i, d := range s.InputShape {
		shape[i] = d
	}
	return map[string]any{
		"input_shape":  shape,
		"output_width": s.OutputWidth,
		"label_mode":   string(s.Mode),
	}
}

func batchValue(b dataset.Batch) map[string]any {
	return map[string]any{
		"inputs":  tensorValue(b.Inputs),
		"outputs": tensorValue(b.Outputs),
	}
}

func tensorValue(t encoding.Tensor) map[string]any {
	shape := make([]any, len(t.Shape))
	for i, d := range t.Shape {
		shape[i] = d
	}
	data := make([]any, len(t.Data))
	for i, v := range t.Data {
		data[i] = float64(v)
	}
	return map[string]any{"shape": shape, "data": data}
}

func tensorFrom(v *structpb.Value) (encoding.Tensor, error) {
	s := v.GetStructValue()
	if s == nil {
		return encoding.Tensor{}, errors.New("missing tensor")
	}
	var t encoding.Tensor
	for _, d := range s.GetFields()["shape"].GetListValue().GetValues() {
		t.Shape = append(t.Shape, int(d.GetNumberValue()))
	}
	values := s.GetFields()["data"].GetListValue().GetValues()
	t.Data = make([]float32, len(values))
	for i, x := range values {
		t.Data[i] = float32(x.GetNumberValue())
	}
	if len(t.Shape) == 0 || t.Size() != len(t.Data) {
		return encoding.Tensor{}, fmt.Errorf("%w: shape %v holds %d values", encoding.ErrShapeMismatch, t.Shape, len(t.Data))
	}
	return t, nil
}

// #endregion wire
