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

// internal/controller/common/kubeutil/apply.go
// Package kubeutil provides utility functions for interacting with Kubernetes resources.
package kubeutil

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil" // For OperationResult
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ApplyResult contains the result of an apply operation (SSA).
// Server-Side Apply does not tell Created from Updated, so a successful apply reports OperationResultNone.
type ApplyResult struct {
	Operation controllerutil.OperationResult
	// Error holds any error that occurred during the apply operation.
	Error error
}

// ApplyObject idempotently applies the desired state of a Kubernetes object
// using Server-Side Apply, managing fields via the specified fieldManager.
// The object must carry Kind, APIVersion and Name. Namespace is required unless
// clusterScoped is set.
func ApplyObject(ctx context.Context, k8sClient client.Client, obj client.Object, fieldManager string, clusterScoped bool) ApplyResult {
	gvk := obj.GetObjectKind().GroupVersionKind()
	objKey := client.ObjectKeyFromObject(obj)

	// Core resources have no Group
	if gvk.Kind == "" || gvk.Version == "" || objKey.Name == "" || (objKey.Namespace == "" && !clusterScoped) {
		err := fmt.Errorf("object is missing essential GVK or Name/Namespace for apply (GVK: %s, NsName: %s)", gvk.String(), objKey.String())
		log.FromContext(ctx).Error(err, "Cannot apply object without complete metadata")
		return ApplyResult{Error: err}
	}

	logger := log.FromContext(ctx).WithValues(
		"kind", gvk.Kind,
		"version", gvk.Version,
		"name", objKey.Name,
		"namespace", objKey.Namespace,
		"fieldManager", fieldManager,
	)
	logger.V(1).Info("Attempting to apply object using Server-Side Apply")

	// ForceOwnership takes over fields last written by another manager (kubectl, Helm).
	patchOpts := []client.PatchOption{
		client.FieldOwner(fieldManager),
		client.ForceOwnership,
	}
	if err := k8sClient.Patch(ctx, obj, client.Apply, patchOpts...); err != nil {
		logger.V(1).Error(err, "Patch call failed")
		return ApplyResult{Error: err} // Return the API error verbatim
	}

	logger.V(1).Info("Patch call succeeded")
	return ApplyResult{Operation: controllerutil.OperationResultNone}
}

// DeleteObject deletes obj, treating an already absent object as success.
// An object whose kind is not served by the cluster (CRD not installed) is absent too.
func DeleteObject(ctx context.Context, k8sClient client.Client, obj client.Object) error {
	err := k8sClient.Delete(ctx, obj, client.PropagationPolicy("Background"))
	if err != nil && !apierrors.IsNotFound(err) && !meta.IsNoMatchError(err) {
		return err
	}
	log.FromContext(ctx).V(1).Info("Deleted object", "name", obj.GetName(), "namespace", obj.GetNamespace(), "found", err == nil)
	return nil
}

// BuildObjectResultMapKey creates a unique string key for an object.
// It uses the object's GVK string, Namespace, and Name.
func BuildObjectResultMapKey(obj client.Object) string {
	if obj == nil {
		return ""
	}
	gvk := obj.GetObjectKind().GroupVersionKind()
	return gvk.String() + "/" + client.ObjectKeyFromObject(obj).String()
}

// ResourceClient applies, reads and deletes objects on behalf of one field manager.
type ResourceClient struct {
	client       client.Client
	fieldManager string
}

// NewResourceClient wraps c. Every apply is made as fieldManager.
func NewResourceClient(c client.Client, fieldManager string) *ResourceClient {
	return &ResourceClient{client: c, fieldManager: fieldManager}
}

// Apply applies objs in order and stops at the first failure.
// Objects without a namespace are applied as cluster-scoped.
func (r *ResourceClient) Apply(ctx context.Context, objs ...client.Object) error {
	for _, obj := range objs {
		result := ApplyObject(ctx, r.client, obj, r.fieldManager, obj.GetNamespace() == "")
		if result.Error != nil {
			return fmt.Errorf("failed to apply %s: %w", BuildObjectResultMapKey(obj), result.Error)
		}
	}
	return nil
}

// Get reads the object identified by key into obj.
func (r *ResourceClient) Get(ctx context.Context, key client.ObjectKey, obj client.Object) error {
	return r.client.Get(ctx, key, obj)
}

// Delete removes objs, ignoring the ones already gone.
func (r *ResourceClient) Delete(ctx context.Context, objs ...client.Object) error {
	for _, obj := range objs {
		if err := DeleteObject(ctx, r.client, obj); err != nil {
			return fmt.Errorf("failed to delete %s: %w", BuildObjectResultMapKey(obj), err)
		}
	}
	return nil
}
