// Package cli implements the zipbuilder command-line client.
//
// Commands:
//
//	build  <manifest-url>   submit and wait until the archive is published
//	submit <manifest-url>   submit and print the job record
//	status <task-key>       print the current job record
//	wait   <task-key>       poll until the job finishes or fails
package cli
