/*
package gossip tells waiting clients when a ladder changes, whether the change
came through this process or arrived from the database as a notification.

The name is imperfect, but see the section "Promotion" on https://en.wikipedia.org/wiki/Hadacol.
*/

package gossip
