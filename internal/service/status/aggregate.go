package status

import "github.com/splax/statuspage/internal/domain"

var severity = map[domain.ServiceStatus]int{
	domain.ServiceOperational:         0,
	domain.ServiceDegradedPerformance: 1,
	domain.ServicePartialOutage:       2,
	domain.ServiceMajorOutage:         3,
}

// Aggregate folds service statuses into one organization-wide status.
// UNDER_MAINTENANCE never escalates and an empty set is OPERATIONAL.
func Aggregate(statuses ...domain.ServiceStatus) domain.ServiceStatus {
	worst := domain.ServiceOperational
	for _, status := range statuses {
		rank, ok := severity[status]
		if !ok {
			continue
		}
		if rank > severity[worst] {
			worst = status
		}
	}
	return worst
}

// AggregateServices is Aggregate over a registry snapshot.
func AggregateServices(services []domain.Service) domain.ServiceStatus {
	statuses := make([]domain.ServiceStatus, 0, len(services))
	for _, svc := range services {
		statuses = append(statuses, svc.Status)
	}
	return Aggregate(statuses...)
}
