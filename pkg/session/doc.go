/*
Package session manages isolated scratch sessions and the preserve/restore
discipline that keeps background generation invisible in the shared
document the user may be editing.
*/
package session
