// pkg/apis/common/constants.go
package common

// Constants for standard labels and operator identification.
const (
	DashboardNameLabel = "dashboard.infini.cloud/dashboard-name" // Label for the owning Dashboard
	ComponentLabel     = "app.kubernetes.io/component"           // Standard Kubernetes label
	ManagedByLabel     = "app.kubernetes.io/managed-by"          // Standard Kubernetes label
	OperatorName       = "infini-dashboard-operator"             // Name of this operator, also the SSA field owner
)

// Defaults applied when the Dashboard spec leaves a field empty.
const (
	DefaultPort            int32 = 8082
	DefaultConfigMapName         = "centraldashboard-config"
	DefaultTargetNamespace       = "kubeflow"
	DefaultComponentName         = "kubeflow-dashboard"
	ServiceName                  = "kubeflow-dashboard" // Workload service name in the supervisor layer
	ContainerPortName            = "ui"
)

// Annotations written by the operator.
const (
	LayerAnnotation = "dashboard.infini.cloud/layer" // JSON of the last applied workload layer
)

// Endpoints the dashboard relates on.
const (
	LinksEndpoint    = "links"
	ProfilesEndpoint = "kubeflow-profiles"
)
