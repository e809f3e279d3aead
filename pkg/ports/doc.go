/*
Package ports declares the interfaces between the batch pipeline and its
collaborators: the sequence engine that builds and renders sequences, the
persistence of the shared document, and the store backing scratch sessions.
*/
package ports
