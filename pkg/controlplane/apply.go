package controlplane

import (
	"context"
	"fmt"
)

// applyChange dispatches one staged change to its resource-type handler.
// Handlers return the previous value so the caller owns the rollback
// snapshot: configuration handlers return the prior key values as a map,
// the workflow handler returns the prior WorkflowStatus.
func (s *Service) applyChange(ctx context.Context, change AppliedChange, actor string) (interface{}, error) {
	switch change.ResourceType {
	case ResourceDecisionStrategy:
		return s.applyDecisionStrategy(ctx, change)
	case ResourceIntentMode:
		return s.applyIntentMode(ctx, change)
	case ResourceKernel:
		return s.applyKernel(ctx, change)
	case ResourceRuntime:
		return s.applyRuntime(ctx, change)
	case ResourceProvider:
		return s.applyProvider(ctx, change)
	case ResourceEmbeddingModel:
		return s.applyEmbeddingModel(ctx, change)
	case ResourceConfig:
		return s.applyConfigEntry(ctx, change)
	case ResourceWorkflow:
		return s.applyWorkflow(ctx, change, actor)
	default:
		return nil, NewValidationError(
			fmt.Sprintf("no apply handler for resource_type %q", change.ResourceType), nil).
			WithCode(ErrCodeValidation).
			WithResource(change.ResourceID)
	}
}

// rollbackChange restores the value captured before a change was applied.
func (s *Service) rollbackChange(ctx context.Context, change AppliedChange, previous interface{}, actor string) error {
	if change.ResourceType == ResourceWorkflow {
		prev, ok := previous.(WorkflowStatus)
		if !ok {
			return NewInternalError("workflow rollback snapshot has unexpected shape", nil).
				WithCode(ErrCodeRollbackFailed).
				WithResource(change.ResourceID)
		}
		resp, err := s.workflows.UpdateStatus(ctx, change.ResourceID, prev, actor)
		if err != nil {
			return err
		}
		if resp.ReasonCode != ReasonOperationCompleted {
			return NewConflictError(resp.Message, nil).
				WithCode(ErrCodeRollbackFailed).
				WithResource(change.ResourceID)
		}
		return nil
	}

	prevKeys, ok := previous.(map[string]interface{})
	if !ok {
		return NewInternalError("rollback snapshot has unexpected shape", nil).
			WithCode(ErrCodeRollbackFailed).
			WithResource(change.ResourceID)
	}
	if len(prevKeys) == 0 {
		return nil
	}
	if err := s.config.UpdateConfig(ctx, prevKeys); err != nil {
		return NewUnavailableError("configuration rollback failed", err).
			WithCode(ErrCodeRollbackFailed).
			WithResource(change.ResourceID)
	}
	return nil
}

func (s *Service) applyDecisionStrategy(ctx context.Context, change AppliedChange) (interface{}, error) {
	return s.applyConfigKey(ctx, keyDecisionStrategy, change)
}

func (s *Service) applyIntentMode(ctx context.Context, change AppliedChange) (interface{}, error) {
	return s.applyConfigKey(ctx, keyIntentMode, change)
}

func (s *Service) applyKernel(ctx context.Context, change AppliedChange) (interface{}, error) {
	return s.applyConfigKey(ctx, keyKernel, change)
}

func (s *Service) applyRuntime(ctx context.Context, change AppliedChange) (interface{}, error) {
	return s.applyConfigKey(ctx, keyRuntime, change)
}

// applyProvider writes the provider key; a map value carrying a model also
// writes the model key, so both restore together on rollback.
func (s *Service) applyProvider(ctx context.Context, change AppliedChange) (interface{}, error) {
	m, isMap := change.NewValue.(map[string]interface{})
	if !isMap || !change.Action.RequiresValue() {
		return s.applyConfigKey(ctx, keyProvider, change)
	}

	updates := map[string]interface{}{keyProvider: valueString(change.NewValue)}
	if model, ok := m["model"].(string); ok && model != "" {
		updates[keyModel] = model
	}
	return s.setConfigKeys(ctx, updates)
}

func (s *Service) applyEmbeddingModel(ctx context.Context, change AppliedChange) (interface{}, error) {
	return s.applyConfigKey(ctx, keyEmbeddingModel, change)
}

// applyConfigEntry writes an arbitrary configuration key named by the
// change's resource_id.
func (s *Service) applyConfigEntry(ctx context.Context, change AppliedChange) (interface{}, error) {
	return s.applyConfigKey(ctx, change.ResourceID, change)
}

// applyWorkflow routes a workflow change to the lifecycle driver: restart
// retries, delete cancels, update and create report a status. A refusal from
// the driver fails the change.
func (s *Service) applyWorkflow(ctx context.Context, change AppliedChange, actor string) (interface{}, error) {
	if s.workflows == nil {
		return nil, NewUnavailableError("workflow driver not configured", nil).
			WithCode(ErrCodeWorkflowNotFound).
			WithResource(change.ResourceID)
	}

	previous := s.workflows.Status(change.ResourceID)

	var resp *WorkflowOperationResponse
	var err error
	switch change.Action {
	case ActionRestart:
		resp, err = s.workflows.Execute(ctx, WorkflowOperationRequest{
			WorkflowID:  change.ResourceID,
			Operation:   OperationRetry,
			TriggeredBy: actor,
		})
	case ActionDelete:
		resp, err = s.workflows.Execute(ctx, WorkflowOperationRequest{
			WorkflowID:  change.ResourceID,
			Operation:   OperationCancel,
			TriggeredBy: actor,
		})
	case ActionUpdate, ActionCreate:
		target := WorkflowStatus(valueString(change.NewValue))
		resp, err = s.workflows.UpdateStatus(ctx, change.ResourceID, target, actor)
	default:
		return nil, NewValidationError(
			fmt.Sprintf("action %q is not supported for workflow changes", change.Action), nil).
			WithCode(ErrCodeValidation).
			WithResource(change.ResourceID)
	}
	if err != nil {
		return nil, err
	}
	if !resp.ReasonCode.IsSuccess() {
		return nil, NewConflictError(resp.Message, nil).
			WithCode(ErrCodeConflict).
			WithResource(change.ResourceID).
			WithOperation(string(change.Action))
	}
	return previous, nil
}

// applyConfigKey applies update, create, delete and restart actions to a
// single configuration key. Restart only makes sense for the resource types
// that restart services; the value is left untouched.
func (s *Service) applyConfigKey(ctx context.Context, key string, change AppliedChange) (interface{}, error) {
	switch change.Action {
	case ActionUpdate, ActionCreate:
		return s.setConfigKeys(ctx, map[string]interface{}{key: change.NewValue})
	case ActionDelete:
		return s.setConfigKeys(ctx, map[string]interface{}{key: nil})
	case ActionRestart:
		if !change.ResourceType.RequiresRestart() {
			return nil, NewValidationError(
				fmt.Sprintf("action restart is not supported for resource_type %q", change.ResourceType), nil).
				WithCode(ErrCodeValidation).
				WithResource(change.ResourceID)
		}
		return map[string]interface{}{}, nil
	default:
		return nil, NewValidationError(
			fmt.Sprintf("unknown action %q", change.Action), nil).
			WithCode(ErrCodeValidation).
			WithResource(change.ResourceID)
	}
}

// setConfigKeys snapshots the current values of the keys being written, then
// writes them. Absent keys snapshot as nil so rollback removes them again.
func (s *Service) setConfigKeys(ctx context.Context, updates map[string]interface{}) (map[string]interface{}, error) {
	cfg, err := s.config.Config(ctx)
	if err != nil {
		return nil, NewUnavailableError("configuration store unavailable", err).
			WithCode(ErrCodeConfigUnavailable)
	}
	previous := make(map[string]interface{}, len(updates))
	for key := range updates {
		previous[key] = cfg[key]
	}
	if err := s.config.UpdateConfig(ctx, updates); err != nil {
		return nil, NewUnavailableError("configuration update failed", err).
			WithCode(ErrCodeConfigUnavailable)
	}
	return previous, nil
}
