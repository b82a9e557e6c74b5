package disk

import "github.com/VictoriaMetrics/metrics"

var (
	importsApplied       = metrics.NewCounter("drivemeta_imports_applied_total")
	deletesApplied       = metrics.NewCounter("drivemeta_deletes_applied_total")
	admissionGrants      = metrics.NewCounter("drivemeta_admission_grants_total")
	admissionAbandoned   = metrics.NewCounter("drivemeta_admission_abandoned_total")
	validationRejections = metrics.NewCounter("drivemeta_validation_rejections_total")
)
