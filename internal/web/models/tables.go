package models

import (
	"time"

	"github.com/foxzi/ingestdesk/internal/datatable"
)

// JobsTable is the table layout of the jobs page.
func JobsTable(loc *time.Location) datatable.Config {
	statusOpts := make([]datatable.Option, 0, len(JobStatuses))
	for _, s := range JobStatuses {
		statusOpts = append(statusOpts, datatable.Option{Value: string(s), Label: s.Label()})
	}

	return datatable.Config{
		Columns: []datatable.Column{
			{ID: "job_id", Label: "ID", Sortable: true},
			{ID: "job_original_filename", Label: "Filename", Sortable: true},
			{ID: "job_status", Label: "Status", Sortable: true},
			{ID: "job_total_rows", Label: "Total Rows", Sortable: true},
			{ID: "job_processed_rows", Label: "Processed", Sortable: true},
			{ID: "job_issue_count", Label: "Issues", Sortable: true},
			{ID: "actions", Label: "Actions"},
			{ID: "job_created_at", Label: "Created At", Sortable: true},
			{ID: "job_process_start", Label: "Process Start", Sortable: true},
			{ID: "job_process_end", Label: "Process End", Sortable: true},
			{ID: "duration", Label: "Duration"},
			{ID: "job_user_id", Label: "User ID", Sortable: true},
			{ID: "job_s3_object_key", Label: "Object Key", Sortable: true},
		},
		InitialVisible: []string{
			"job_id", "job_original_filename", "job_status", "job_total_rows", "job_processed_rows",
			"job_issue_count", "actions", "job_created_at", "duration",
		},
		SearchFields: []string{"job_original_filename", "job_user_id", "job_s3_object_key"},
		Filters: []datatable.FilterSpec{
			{Field: "job_status", Kind: datatable.FilterSelect, Label: "Status", Options: statusOpts},
			{
				Field: "job_created_at", Kind: datatable.FilterDateRange, Label: "Created Date",
				Range: &datatable.RangeFields{Start: "job_created_at_start", End: "job_created_at_end"},
			},
			{Field: "job_original_filename", Kind: datatable.FilterText, Label: "Filename", Placeholder: "Search by filename..."},
			{Field: "job_user_id", Kind: datatable.FilterText, Label: "User ID", Placeholder: "Search by user ID..."},
		},
		Classifier: datatable.NewKeywordClassifier().
			Override("job_user_id", datatable.TypeText).
			Override("job_s3_object_key", datatable.TypeText).
			Override("job_process_start", datatable.TypeDate).
			Override("job_process_end", datatable.TypeDate),
		Location: loc,
	}
}

// IssuesTable is the table layout of the issues page. A job-scoped page
// drops the job column and filter.
func IssuesTable(loc *time.Location, jobScoped bool) datatable.Config {
	typeOpts := make([]datatable.Option, 0, len(IssueTypes))
	for _, t := range IssueTypes {
		typeOpts = append(typeOpts, datatable.Option{Value: string(t), Label: t.Label()})
	}

	filters := []datatable.FilterSpec{
		{Field: "issue_type", Kind: datatable.FilterSelect, Label: "Type", Options: typeOpts},
		{
			Field: "issue_resolved", Kind: datatable.FilterSelect, Label: "Status",
			Options: []datatable.Option{{Value: "true", Label: "Resolved"}, {Value: "false", Label: "Unresolved"}},
		},
		{Field: "issues_job_id", Kind: datatable.FilterText, Label: "Job ID", Placeholder: "Search by job ID..."},
		{
			Field: "issue_created_at", Kind: datatable.FilterDateRange, Label: "Created Date",
			Range: &datatable.RangeFields{Start: "issue_created_at_start", End: "issue_created_at_end"},
		},
	}
	visible := []string{
		"issue_id", "issues_job_id", "issue_type", "issue_resolved", "issue_description",
		"affected_rows_count", "issue_created_at", "issue_resolved_at",
	}
	if jobScoped {
		filters = append(filters[:2], filters[3:]...)
		visible = append(visible[:1], visible[2:]...)
	}

	return datatable.Config{
		Columns: []datatable.Column{
			{ID: "issue_id", Label: "ID", Sortable: true},
			{ID: "issues_job_id", Label: "Job ID", Sortable: true},
			{ID: "issue_type", Label: "Type", Sortable: true},
			{ID: "issue_resolved", Label: "Status", Sortable: true},
			{ID: "issue_description", Label: "Description", Sortable: true},
			{ID: "affected_rows_count", Label: "Affected Rows", Sortable: true},
			{ID: "issue_created_at", Label: "Created At", Sortable: true},
			{ID: "issue_resolved_at", Label: "Resolved At", Sortable: true},
			{ID: "issue_resolved_by", Label: "Resolved By", Sortable: true},
			{ID: "actions", Label: "Actions"},
		},
		InitialVisible: visible,
		SearchFields:   []string{"issue_description", "issue_resolved_by", "issues_job_id"},
		Filters:        filters,
		Classifier: datatable.NewKeywordClassifier().
			Override("issue_resolved", datatable.TypeText).
			Override("issue_resolved_by", datatable.TypeText).
			Override("issue_resolved_at", datatable.TypeDate),
		Location: loc,
	}
}

// ContactsTable is the table layout of the contacts page.
func ContactsTable(loc *time.Location) datatable.Config {
	return datatable.Config{
		Columns: []datatable.Column{
			{ID: "contact_id", Label: "ID", Sortable: true},
			{ID: "contact_email", Label: "Email", Sortable: true},
			{ID: "contact_first_name", Label: "First Name", Sortable: true},
			{ID: "contact_last_name", Label: "Last Name", Sortable: true},
			{ID: "contact_company", Label: "Company", Sortable: true},
			{ID: "staging_id", Label: "Staging ID", Sortable: true},
			{ID: "contacts_user_id", Label: "User ID", Sortable: true},
			{ID: "contact_created_at", Label: "Created At", Sortable: true},
		},
		InitialVisible: []string{
			"contact_id", "contact_email", "contact_first_name", "contact_last_name",
			"contact_company", "staging_id", "contact_created_at",
		},
		SearchFields: []string{"contact_email", "contact_first_name", "contact_last_name", "contact_company"},
		Filters: []datatable.FilterSpec{
			{Field: "contact_email", Kind: datatable.FilterText, Label: "Email", Placeholder: "Search by email..."},
			{Field: "contact_first_name", Kind: datatable.FilterText, Label: "First Name", Placeholder: "Search by first name..."},
			{Field: "contact_last_name", Kind: datatable.FilterText, Label: "Last Name", Placeholder: "Search by last name..."},
			{Field: "contact_company", Kind: datatable.FilterText, Label: "Company", Placeholder: "Search by company..."},
			{
				Field: "contact_created_at", Kind: datatable.FilterDateRange, Label: "Created Date",
				Range: &datatable.RangeFields{Start: "contact_created_at_start", End: "contact_created_at_end"},
			},
		},
		Classifier: datatable.NewKeywordClassifier().Override("contacts_user_id", datatable.TypeText),
		Location:   loc,
	}
}
