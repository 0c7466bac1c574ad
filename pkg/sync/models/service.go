package models

// ServiceType identifies which of the two content trees an operation or
// revision belongs to. The two trees are fully independent: locks, revisions
// and changelists never cross service boundaries.
type ServiceType string

const (
	// ServiceContemporary is the contemporary content tree.
	ServiceContemporary ServiceType = "Contemporary"
	// ServiceTraditional is the traditional content tree.
	ServiceTraditional ServiceType = "Traditional"
)

// IsValid checks if the service type is one of the two known trees.
func (s ServiceType) IsValid() bool {
	return s == ServiceContemporary || s == ServiceTraditional
}

// AllServices returns both service types in display order.
func AllServices() []ServiceType {
	return []ServiceType{ServiceContemporary, ServiceTraditional}
}

// OperationType is the kind of sync transaction a client runs.
type OperationType string

const (
	// OperationPull downloads server state to the client.
	OperationPull OperationType = "Pull"
	// OperationPush uploads client changes to the server.
	OperationPush OperationType = "Push"
	// OperationReconcile merges both directions in one transaction.
	OperationReconcile OperationType = "Reconcile"
)

// IsValid checks if the operation type is a known transaction kind.
func (o OperationType) IsValid() bool {
	return o == OperationPull || o == OperationPush || o == OperationReconcile
}

// OperationStatus is the lifecycle state of an operation record.
type OperationStatus string

const (
	// StatusActive means the transaction holds the lock and is in progress.
	StatusActive OperationStatus = "active"
	// StatusCompleted means the transaction committed successfully.
	StatusCompleted OperationStatus = "completed"
	// StatusRolledBack means the client rolled the transaction back.
	StatusRolledBack OperationStatus = "rolled_back"
	// StatusCancelledByAdmin means an administrator cancelled the transaction.
	StatusCancelledByAdmin OperationStatus = "cancelled_by_admin"
)
