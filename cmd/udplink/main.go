// Command udplink runs a server or client session over one of the engines
// and inspects the channel layout.
package main

import "os"

func main() {
    if err := newRootCmd().Execute(); err != nil {
        os.Exit(1)
    }
}
