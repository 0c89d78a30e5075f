// Copyright (C) INFINI Labs & INFINI LIMITED.
//
// The INFINI Runtime Operator is offered under the GNU Affero General Public License v3.0
// and as commercial software.
//
// For commercial licensing, contact us at:
//   - Website: infinilabs.com
//   - Email: hello@infini.ltd
//
// Open Source licensed under AGPL V3:
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package status defines the closed set of outcomes a reconciliation pass can
// report, their severities and how they surface as Kubernetes conditions.
package status

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Severity classifies a status by how it resolves.
type Severity string

const (
	// SeverityActive means the pass completed and the dashboard is serving.
	SeverityActive Severity = "Active"
	// SeverityWaiting is transient and expected to clear on a later pass without intervention.
	SeverityWaiting Severity = "Waiting"
	// SeverityBlocked needs an operator or peer change before the pass can succeed.
	SeverityBlocked Severity = "Blocked"
	// SeverityFatal is not retried.
	SeverityFatal Severity = "Error"
)

// Reason is the machine-readable cause of a status.
type Reason string

const (
	ReasonActive                     Reason = "Active"
	ReasonContainerNotReady          Reason = "ContainerNotReady"
	ReasonWrongDeploymentTarget      Reason = "WrongDeploymentTarget"
	ReasonNotLeader                  Reason = "NotLeader"
	ReasonInterfaceNegotiationFailed Reason = "InterfaceNegotiationFailed"
	ReasonRequiredPeerMissing        Reason = "RequiredPeerMissing"
	ReasonRequiredPeerDataMissing    Reason = "RequiredPeerDataMissing"
	ReasonResourceApplyFailed        Reason = "ResourceApplyFailed"
	ReasonLayerUpdateFailed          Reason = "LayerUpdateFailed"
)

// Reasons lists every reason in check precedence order: when several conditions
// hold at once, the earliest one is reported.
var Reasons = []Reason{
	ReasonContainerNotReady,
	ReasonWrongDeploymentTarget,
	ReasonNotLeader,
	ReasonInterfaceNegotiationFailed,
	ReasonRequiredPeerMissing,
	ReasonRequiredPeerDataMissing,
	ReasonResourceApplyFailed,
	ReasonLayerUpdateFailed,
	ReasonActive,
}

// Status is the outcome of a reconciliation pass. Build it with the
// constructors of this package; the zero value is not a valid status.
type Status struct {
	reason   Reason
	severity Severity
	message  string
}

func newStatus(reason Reason, severity Severity, format string, args ...interface{}) Status {
	return Status{reason: reason, severity: severity, message: fmt.Sprintf(format, args...)}
}

// Active reports a completed pass.
func Active() Status {
	return Status{reason: ReasonActive, severity: SeverityActive}
}

// ContainerNotReady reports that the workload supervisor cannot be reached yet.
func ContainerNotReady() Status {
	return newStatus(ReasonContainerNotReady, SeverityWaiting, "Waiting for the workload to become reachable")
}

// WrongDeploymentTarget reports a dashboard created outside the namespace the operator serves.
func WrongDeploymentTarget(actual, expected string) Status {
	return newStatus(ReasonWrongDeploymentTarget, SeverityFatal,
		"Dashboard must be deployed to namespace %q, found in %q", expected, actual)
}

// NotLeader reports that this replica must not write shared state.
func NotLeader() Status {
	return newStatus(ReasonNotLeader, SeverityWaiting, "Waiting for leadership")
}

// NegotiationPending reports a peer that has not advertised any interface version yet.
func NegotiationPending(err error) Status {
	return newStatus(ReasonInterfaceNegotiationFailed, SeverityWaiting, "Waiting for interface versions: %v", err)
}

// NegotiationFailed reports a peer whose interface cannot be used.
func NegotiationFailed(err error) Status {
	return newStatus(ReasonInterfaceNegotiationFailed, SeverityBlocked, "Interface negotiation failed: %v", err)
}

// RequiredPeerMissing reports that no peer is related on a mandatory endpoint.
func RequiredPeerMissing(endpoint string) Status {
	return newStatus(ReasonRequiredPeerMissing, SeverityBlocked, "Add required relation %s", endpoint)
}

// RequiredPeerDataMissing reports a related peer that has not published its data yet.
func RequiredPeerDataMissing(endpoint string) Status {
	return newStatus(ReasonRequiredPeerDataMissing, SeverityWaiting, "Waiting for data on relation %s", endpoint)
}

// ResourceApplyFailed reports an API server rejection while applying resources.
func ResourceApplyFailed(err error) Status {
	return newStatus(ReasonResourceApplyFailed, SeverityBlocked, "Failed to apply resources: %v", err)
}

// LayerUpdateFailed reports that the workload rejected its new configuration.
func LayerUpdateFailed(err error) Status {
	return newStatus(ReasonLayerUpdateFailed, SeverityBlocked, "Failed to update workload configuration: %v", err)
}

func (s Status) Reason() Reason     { return s.reason }
func (s Status) Severity() Severity { return s.severity }
func (s Status) Message() string    { return s.message }

// IsActive reports whether the pass completed.
func (s Status) IsActive() bool { return s.severity == SeverityActive }

// Retryable reports whether a later pass can clear the status.
func (s Status) Retryable() bool {
	return s.severity == SeverityWaiting || s.severity == SeverityBlocked
}

func (s Status) String() string {
	if s.message == "" {
		return string(s.reason)
	}
	return fmt.Sprintf("%s (%s): %s", s.reason, s.severity, s.message)
}

// Condition renders the status as the Ready condition of an object at the given generation.
func (s Status) Condition(conditionType string, generation int64) metav1.Condition {
	cond := metav1.Condition{
		Type:               conditionType,
		Status:             metav1.ConditionFalse,
		ObservedGeneration: generation,
		Reason:             string(s.reason),
		Message:            s.message,
	}
	if s.IsActive() {
		cond.Status = metav1.ConditionTrue
		cond.Message = "Dashboard is active"
	}
	return cond
}
