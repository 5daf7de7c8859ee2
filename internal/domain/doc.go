// Package domain models Los Angeles County sheriff crime incident data and
// the administrative boundaries the incidents are mapped onto.
//
// # Data Sources
//
// Incident records come from the county's published yearly CSV extract
// (one row per reported incident). The columns we consume:
//
//	incident_id    optional stable identifier; when absent a deterministic
//	               SHA-256 id is derived from the row's key fields
//	incident_date  local date, "2006-01-02" or RFC 3339
//	category       free-text offense category, e.g. "BURGLARY"
//	city           free-text city label as entered by the reporting station
//	latitude       WGS-84, may be empty
//	longitude      WGS-84, may be empty
//
// Boundary polygons come from the county's "City and Unincorporated
// Boundaries (Legal)" layer, either as an Esri shapefile or GeoJSON. The
// polygon set partitions the county without overlap; overlapping source
// polygons are a data-quality problem upstream, not something the pipeline
// tries to repair.
//
// # Label Conventions
//
// City labels in the incident extract are inconsistent: casing varies,
// stations abbreviate ("LA", "E Los Angeles"), and unincorporated
// communities are written a dozen ways. Normalization resolves a raw label
// in three steps: exact match against canonical boundary names, then the
// alias table, then a bounded edit-distance search. Labels that survive all
// three fall into the unknown-city sentinel and are counted in the run
// report rather than dropped.
//
// Offense categories are mapped onto four analysis buckets (person-related,
// property-related, drug-alcohol-related, miscellaneous). The mapping is
// configuration, not code: it ships with an embedded default but can be
// replaced per run. A raw category missing from the mapping aborts the run
// at validation time because silently mis-bucketing it would corrupt every
// aggregate the dashboard shows.
//
// # Sentinel Geographies
//
// Three reserved geography ids keep the totals reconcilable:
//
//	unincorporated-unknown  incident had no usable city label and no location
//	outside-county          point fell beyond every polygon plus tolerance
//	unmatched               city label resolved to no known boundary
//
// Every incident ends up in exactly one geography, sentinel or real, so the
// sum over all aggregation cells always equals the ingested incident count.
//
// # ID Generation
//
// When the extract carries no incident id, a deterministic SHA-256 hash of
// category|city|lat|lon|timestamp is used. Re-running the pipeline on the
// same extract therefore produces identical joined records. See [generateID].
package domain
