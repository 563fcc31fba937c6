// Package querydoc parses and emits the document dialect: collection
// method calls such as
//
//	db.users.find({age: {$gt: 25}}, {name: 1}).sort({name: 1}).limit(10);
//
// A script may declare producers with var, let or const and reference
// them as the operand of $in or $nin:
//
//	var ids = db.order_items.find({sku: "A1"}, {order_id: 1}).toArray().map(doc => doc.order_id);
//	db.orders.deleteMany({_id: {$in: ids}});
//
// Parsing folds producers back into their consumers, so the result has the
// same shape as a relational IN (SELECT ...) subquery. Emitting does the
// reverse from a resolved plan.
package querydoc
