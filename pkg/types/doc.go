// Package types defines the content model (blocks and content trees), the
// rule and store interfaces, configuration, and the standard errors shared by
// every blockshift package.
//
// A content tree is the decoded form of one StreamField column: an ordered
// list of typed blocks. Rules rewrite block values (BlockRule), whole trees
// (TreeRule) or plain columns of a row (RecordRule). A Store gives rules and
// the migration runner lazy, keyed access to the rows they rewrite.
package types
